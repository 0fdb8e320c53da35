package nn

import "math"

// Adam optimizer with bias-corrected first and second moments.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	params []*Parameter
	m      [][]float64
	v      [][]float64
	step   int
}

// NewAdam builds an Adam optimizer over params with the usual
// defaults (beta1 0.9, beta2 0.999, eps 1e-8).
func NewAdam(params []*Parameter, lr float64) *Adam {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, p.Value.Size())
		v[i] = make([]float64, p.Value.Size())
	}
	return &Adam{
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		params: params,
		m:      m,
		v:      v,
	}
}

// LR returns the current learning rate.
func (o *Adam) LR() float64 { return o.lr }

// SetLR replaces the learning rate, keeping moment state.
func (o *Adam) SetLR(lr float64) { o.lr = lr }

// Step applies one update from the accumulated gradients. Parameters
// without a gradient buffer are skipped.
func (o *Adam) Step() {
	o.step++
	c1 := 1 - math.Pow(o.beta1, float64(o.step))
	c2 := 1 - math.Pow(o.beta2, float64(o.step))

	for i, p := range o.params {
		grad := p.Grad
		if grad == nil {
			continue
		}
		data := p.Value.Data()
		m, v := o.m[i], o.v[i]
		for j, g := range grad {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			data[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}
}

// PlateauScheduler reduces the learning rate when a minimized metric,
// typically the validation loss, stops improving for longer than the
// configured patience.
type PlateauScheduler struct {
	opt      *Adam
	factor   float64
	patience int

	best    float64
	badRuns int
	started bool
}

const plateauThreshold = 1e-4

// NewPlateauScheduler watches opt, multiplying its learning rate by
// factor once the metric fails to improve for patience+1 consecutive
// steps.
func NewPlateauScheduler(opt *Adam, factor float64, patience int) *PlateauScheduler {
	return &PlateauScheduler{opt: opt, factor: factor, patience: patience}
}

// Step feeds the scheduler the epoch metric. It returns true when the
// learning rate was reduced.
func (s *PlateauScheduler) Step(metric float64) bool {
	if !s.started || metric < s.best-plateauThreshold {
		s.best = metric
		s.started = true
		s.badRuns = 0
		return false
	}
	s.badRuns++
	if s.badRuns <= s.patience {
		return false
	}
	s.opt.SetLR(s.opt.LR() * s.factor)
	s.badRuns = 0
	return true
}
