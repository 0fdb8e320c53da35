package nn

import (
	"fmt"
	"math"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// CrossEntropy returns the mean cross-entropy of logits (N, C)
// against integer labels, computed through a max-shifted log-softmax
// so large logits do not overflow.
func CrossEntropy(logits *tensor.Tensor, labels []int) float64 {
	loss, _ := crossEntropy(logits, labels, false)
	return loss
}

// CrossEntropyWithGrad returns the mean cross-entropy and its
// gradient with respect to the logits, (softmax - onehot) / N.
func CrossEntropyWithGrad(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor) {
	return crossEntropy(logits, labels, true)
}

func crossEntropy(logits *tensor.Tensor, labels []int, wantGrad bool) (float64, *tensor.Tensor) {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("nn: CrossEntropy expects 2D logits, got %v", shape))
	}
	n, c := shape[0], shape[1]
	if len(labels) != n {
		panic(fmt.Sprintf("nn: %d labels for %d logit rows", len(labels), n))
	}

	ld := logits.Data()
	var grad *tensor.Tensor
	var gd []float64
	if wantGrad {
		grad = tensor.New(n, c)
		gd = grad.Data()
	}

	total := 0.0
	invN := 1 / float64(n)
	for b := 0; b < n; b++ {
		label := labels[b]
		if label < 0 || label >= c {
			panic(fmt.Sprintf("nn: label %d out of range for %d classes", label, c))
		}
		row := ld[b*c : (b+1)*c]

		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - max)
		}
		logSum := math.Log(sum)

		total += logSum - (row[label] - max)

		if wantGrad {
			g := gd[b*c : (b+1)*c]
			for i, v := range row {
				g[i] = math.Exp(v-max) / sum * invN
			}
			g[label] -= invN
		}
	}

	return total * invN, grad
}
