package nn

import (
	"fmt"
	"math"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

const (
	bnEpsilon  = 1e-5
	bnMomentum = 0.1
)

// BatchNorm2D normalizes each channel of a (N, C, H, W) batch.
// Training passes use batch statistics and fold them into the running
// estimates; eval passes use the running estimates only.
type BatchNorm2D struct {
	Channels int

	Gamma *Parameter // scale, shape (C)
	Beta  *Parameter // shift, shape (C)

	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor

	// Saved by the last training forward for the backward pass.
	batchMean   []float64
	batchInvStd []float64
	normalized  *tensor.Tensor
}

func newBatchNorm2D(name string, channels int) *BatchNorm2D {
	bn := &BatchNorm2D{
		Channels:    channels,
		Gamma:       newParameter(name+".weight", channels),
		Beta:        newParameter(name+".bias", channels),
		RunningMean: tensor.New(channels),
		RunningVar:  tensor.New(channels),
	}
	g := bn.Gamma.Value.Data()
	v := bn.RunningVar.Data()
	for i := 0; i < channels; i++ {
		g[i] = 1
		v[i] = 1
	}
	return bn
}

func (l *BatchNorm2D) checkInput(x *tensor.Tensor) (n, h, w int) {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != l.Channels {
		panic(fmt.Sprintf("nn: BatchNorm2D expects (N, %d, H, W) input, got %v", l.Channels, shape))
	}
	return shape[0], shape[2], shape[3]
}

// Forward normalizes with the running statistics.
func (l *BatchNorm2D) Forward(x *tensor.Tensor, workers int) *tensor.Tensor {
	n, h, w := l.checkInput(x)
	c := l.Channels
	plane := h * w

	out := tensor.New(n, c, h, w)
	xd := x.Data()
	od := out.Data()
	mean := l.RunningMean.Data()
	variance := l.RunningVar.Data()
	gamma := l.Gamma.Value.Data()
	beta := l.Beta.Value.Data()

	parallelFor(n*c, workers, func(pi int) {
		ch := pi % c
		scale := gamma[ch] / math.Sqrt(variance[ch]+bnEpsilon)
		shift := beta[ch] - mean[ch]*scale

		src := xd[pi*plane : (pi+1)*plane]
		dst := od[pi*plane : (pi+1)*plane]
		for i, v := range src {
			dst[i] = v*scale + shift
		}
	})

	return out
}

// ForwardTraining normalizes with batch statistics, updates the
// running estimates, and caches what Backward needs.
func (l *BatchNorm2D) ForwardTraining(x *tensor.Tensor, workers int) *tensor.Tensor {
	n, h, w := l.checkInput(x)
	c := l.Channels
	plane := h * w
	count := float64(n * plane)

	xd := x.Data()
	mean := make([]float64, c)
	invStd := make([]float64, c)

	parallelFor(c, workers, func(ch int) {
		sum := 0.0
		for b := 0; b < n; b++ {
			src := xd[(b*c+ch)*plane : (b*c+ch+1)*plane]
			for _, v := range src {
				sum += v
			}
		}
		m := sum / count

		sq := 0.0
		for b := 0; b < n; b++ {
			src := xd[(b*c+ch)*plane : (b*c+ch+1)*plane]
			for _, v := range src {
				d := v - m
				sq += d * d
			}
		}
		biased := sq / count

		mean[ch] = m
		invStd[ch] = 1 / math.Sqrt(biased+bnEpsilon)

		// Running variance tracks the unbiased estimate.
		unbiased := biased
		if count > 1 {
			unbiased = sq / (count - 1)
		}
		rm := l.RunningMean.Data()
		rv := l.RunningVar.Data()
		rm[ch] = (1-bnMomentum)*rm[ch] + bnMomentum*m
		rv[ch] = (1-bnMomentum)*rv[ch] + bnMomentum*unbiased
	})

	out := tensor.New(n, c, h, w)
	norm := tensor.New(n, c, h, w)
	od := out.Data()
	nd := norm.Data()
	gamma := l.Gamma.Value.Data()
	beta := l.Beta.Value.Data()

	parallelFor(n*c, workers, func(pi int) {
		ch := pi % c
		m, is := mean[ch], invStd[ch]
		g, b := gamma[ch], beta[ch]

		src := xd[pi*plane : (pi+1)*plane]
		no := nd[pi*plane : (pi+1)*plane]
		dst := od[pi*plane : (pi+1)*plane]
		for i, v := range src {
			z := (v - m) * is
			no[i] = z
			dst[i] = z*g + b
		}
	})

	l.batchMean = mean
	l.batchInvStd = invStd
	l.normalized = norm
	return out
}

// Backward computes input gradients from the cached training forward
// and accumulates gamma/beta gradients.
func (l *BatchNorm2D) Backward(gradOut *tensor.Tensor, workers int) *tensor.Tensor {
	if l.normalized == nil {
		panic("nn: BatchNorm2D.Backward called without a training forward")
	}
	n, h, w := l.checkInput(gradOut)
	c := l.Channels
	plane := h * w
	count := float64(n * plane)

	gd := gradOut.Data()
	nd := l.normalized.Data()
	gamma := l.Gamma.Value.Data()

	l.Gamma.ensureGrad()
	l.Beta.ensureGrad()
	gg := l.Gamma.Grad
	bg := l.Beta.Grad

	gradIn := tensor.New(n, c, h, w)
	gid := gradIn.Data()

	parallelFor(c, workers, func(ch int) {
		sumG := 0.0
		sumGZ := 0.0
		for b := 0; b < n; b++ {
			off := (b*c + ch) * plane
			for i := 0; i < plane; i++ {
				g := gd[off+i]
				sumG += g
				sumGZ += g * nd[off+i]
			}
		}
		gg[ch] += sumGZ
		bg[ch] += sumG

		// dL/dx = gamma*invStd/m * (m*g - sum(g) - z*sum(g*z))
		coeff := gamma[ch] * l.batchInvStd[ch] / count
		for b := 0; b < n; b++ {
			off := (b*c + ch) * plane
			for i := 0; i < plane; i++ {
				g := gd[off+i]
				z := nd[off+i]
				gid[off+i] = coeff * (count*g - sumG - z*sumGZ)
			}
		}
	})

	return gradIn
}
