package nn

import (
	"fmt"
	"math/rand"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// Linear is a fully connected layer. Weight follows the
// (out_features, in_features) convention, so row i of the weight is
// the i-th output neuron.
type Linear struct {
	InFeatures  int
	OutFeatures int

	Weight *Parameter
	Bias   *Parameter
}

func newLinear(name string, inFeatures, outFeatures int) *Linear {
	return &Linear{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Weight:      newParameter(name+".weight", outFeatures, inFeatures),
		Bias:        newParameter(name+".bias", outFeatures),
	}
}

// Forward computes x (N, in) times the transposed weight plus bias,
// giving (N, out).
func (l *Linear) Forward(x *tensor.Tensor, workers int) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.InFeatures {
		panic(fmt.Sprintf("nn: Linear expects (N, %d) input, got %v", l.InFeatures, shape))
	}
	n := shape[0]

	out := tensor.New(n, l.OutFeatures)
	xd := x.Data()
	od := out.Data()
	wd := l.Weight.Value.Data()
	bd := l.Bias.Value.Data()
	in, outF := l.InFeatures, l.OutFeatures

	parallelFor(n, workers, func(b int) {
		row := xd[b*in : (b+1)*in]
		dst := od[b*outF : (b+1)*outF]
		for o := 0; o < outF; o++ {
			wre := wd[o*in : (o+1)*in]
			sum := bd[o]
			for i, v := range row {
				sum += v * wre[i]
			}
			dst[o] = sum
		}
	})
	return out
}

// Backward computes input gradients and accumulates weight/bias
// gradients. x must be the forward input.
func (l *Linear) Backward(x, gradOut *tensor.Tensor, workers int) *tensor.Tensor {
	n := x.Dim(0)
	in, outF := l.InFeatures, l.OutFeatures

	xd := x.Data()
	gd := gradOut.Data()
	wd := l.Weight.Value.Data()

	gradIn := tensor.New(n, in)
	gid := gradIn.Data()

	parallelFor(n, workers, func(b int) {
		g := gd[b*outF : (b+1)*outF]
		dst := gid[b*in : (b+1)*in]
		for o, gv := range g {
			if gv == 0 {
				continue
			}
			wre := wd[o*in : (o+1)*in]
			for i, wv := range wre {
				dst[i] += gv * wv
			}
		}
	})

	l.Weight.ensureGrad()
	l.Bias.ensureGrad()
	wg := l.Weight.Grad
	bg := l.Bias.Grad

	parallelFor(outF, workers, func(o int) {
		for b := 0; b < n; b++ {
			gv := gd[b*outF+o]
			if gv == 0 {
				continue
			}
			bg[o] += gv
			row := xd[b*in : (b+1)*in]
			wre := wg[o*in : (o+1)*in]
			for i, v := range row {
				wre[i] += gv * v
			}
		}
	})

	return gradIn
}

// ReLU zeroes negatives, returning a new tensor.
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(x.Shape()...)
	od := out.Data()
	for i, v := range x.Data() {
		if v > 0 {
			od[i] = v
		}
	}
	return out
}

// reluBackward masks gradients where the forward input was not
// positive.
func reluBackward(x, gradOut *tensor.Tensor) *tensor.Tensor {
	gradIn := tensor.New(x.Shape()...)
	gid := gradIn.Data()
	gd := gradOut.Data()
	for i, v := range x.Data() {
		if v > 0 {
			gid[i] = gd[i]
		}
	}
	return gradIn
}

// Dropout is inverted dropout: kept activations are scaled by
// 1/(1-p) at training time so eval is an identity pass.
type Dropout struct {
	P float64

	mask []float64
}

func newDropout(p float64) *Dropout { return &Dropout{P: p} }

// ForwardTraining samples a fresh mask from rng and applies it.
func (l *Dropout) ForwardTraining(x *tensor.Tensor, rng *rand.Rand) *tensor.Tensor {
	if l.P <= 0 {
		l.mask = nil
		return x
	}
	keep := 1 - l.P
	scale := 1 / keep

	out := tensor.New(x.Shape()...)
	od := out.Data()
	mask := make([]float64, x.Size())
	for i, v := range x.Data() {
		if rng.Float64() < keep {
			mask[i] = scale
			od[i] = v * scale
		}
	}
	l.mask = mask
	return out
}

// Backward applies the mask of the last training forward.
func (l *Dropout) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	if l.mask == nil {
		return gradOut
	}
	gradIn := tensor.New(gradOut.Shape()...)
	gid := gradIn.Data()
	gd := gradOut.Data()
	for i, m := range l.mask {
		gid[i] = gd[i] * m
	}
	return gradIn
}
