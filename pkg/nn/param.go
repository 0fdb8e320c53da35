// Package nn implements the fixed convolutional classifier
// architecture: four conv/batch-norm/ReLU/max-pool blocks, global
// average pooling and a two-layer head. Forward passes are pure
// functions of input and parameters; gradient buffers exist only in
// training mode.
package nn

import (
	"sync"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// Parameter is a named learnable tensor. Grad is nil outside training
// mode, so evaluation-mode forwards can never retain gradient state.
type Parameter struct {
	Name  string
	Value *tensor.Tensor
	Grad  []float64
}

func newParameter(name string, shape ...int) *Parameter {
	return &Parameter{Name: name, Value: tensor.New(shape...)}
}

func (p *Parameter) ensureGrad() {
	if p.Grad == nil {
		p.Grad = make([]float64, p.Value.Size())
	}
}

func (p *Parameter) dropGrad() {
	p.Grad = nil
}

// ZeroGrad clears the gradient buffer. No-op outside training mode.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// parallelFor runs fn(i) for i in [0, n), split across the given
// number of worker goroutines. Iterations must be independent.
// workers <= 1 runs inline, keeping the single-threaded device
// deterministic in scheduling as well as results.
func parallelFor(n, workers int, fn func(i int)) {
	if workers > n {
		workers = n
	}
	if workers <= 1 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := n / workers
	rem := n % workers

	var wg sync.WaitGroup
	wg.Add(workers)

	start := 0
	for w := 0; w < workers; w++ {
		end := start + chunk
		if w < rem {
			end++
		}
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(start, end)
		start = end
	}

	wg.Wait()
}
