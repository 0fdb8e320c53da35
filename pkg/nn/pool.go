package nn

import (
	"fmt"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

const poolWindow = 2

// MaxPool2D halves spatial resolution with a 2x2 window and stride 2.
// Odd trailing rows/columns are dropped, matching floor division of
// the output size.
type MaxPool2D struct {
	// argmax holds, per output element of the last training forward,
	// the flat input index that won the window.
	argmax []int
	inShp  []int
}

func newMaxPool2D() *MaxPool2D { return &MaxPool2D{} }

func poolOutSize(h, w int) (int, int) { return h / poolWindow, w / poolWindow }

// Forward pools x (N, C, H, W) into (N, C, H/2, W/2).
func (l *MaxPool2D) Forward(x *tensor.Tensor, workers int) *tensor.Tensor {
	return l.forward(x, workers, false)
}

// ForwardTraining pools and records winner positions for Backward.
func (l *MaxPool2D) ForwardTraining(x *tensor.Tensor, workers int) *tensor.Tensor {
	return l.forward(x, workers, true)
}

func (l *MaxPool2D) forward(x *tensor.Tensor, workers int, record bool) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("nn: MaxPool2D expects a 4D input, got %v", shape))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	oh, ow := poolOutSize(h, w)
	if oh == 0 || ow == 0 {
		panic(fmt.Sprintf("nn: MaxPool2D input %dx%d too small to pool", h, w))
	}

	out := tensor.New(n, c, oh, ow)
	xd := x.Data()
	od := out.Data()

	var am []int
	if record {
		am = make([]int, n*c*oh*ow)
	}

	inPlane := h * w
	outPlane := oh * ow

	parallelFor(n*c, workers, func(pi int) {
		src := xd[pi*inPlane:]
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				base := (oy*poolWindow)*w + ox*poolWindow
				best := base
				for dy := 0; dy < poolWindow; dy++ {
					for dx := 0; dx < poolWindow; dx++ {
						idx := base + dy*w + dx
						if src[idx] > src[best] {
							best = idx
						}
					}
				}
				oi := pi*outPlane + oy*ow + ox
				od[oi] = src[best]
				if record {
					am[oi] = pi*inPlane + best
				}
			}
		}
	})

	if record {
		l.argmax = am
		l.inShp = []int{n, c, h, w}
	}
	return out
}

// Backward routes each output gradient to the input element that won
// its window.
func (l *MaxPool2D) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	if l.argmax == nil {
		panic("nn: MaxPool2D.Backward called without a training forward")
	}
	gradIn := tensor.New(l.inShp...)
	gid := gradIn.Data()
	for i, v := range gradOut.Data() {
		gid[l.argmax[i]] += v
	}
	return gradIn
}

// GlobalAvgPool reduces (N, C, H, W) to (N, C) by averaging each
// channel plane.
func GlobalAvgPool(x *tensor.Tensor, workers int) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("nn: GlobalAvgPool expects a 4D input, got %v", shape))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	plane := h * w

	out := tensor.New(n, c)
	xd := x.Data()
	od := out.Data()

	parallelFor(n*c, workers, func(pi int) {
		sum := 0.0
		for _, v := range xd[pi*plane : (pi+1)*plane] {
			sum += v
		}
		od[pi] = sum / float64(plane)
	})
	return out
}

// globalAvgPoolBackward spreads each channel gradient uniformly back
// over the plane it was averaged from.
func globalAvgPoolBackward(gradOut *tensor.Tensor, n, c, h, w int) *tensor.Tensor {
	plane := h * w
	gradIn := tensor.New(n, c, h, w)
	gid := gradIn.Data()
	gd := gradOut.Data()
	inv := 1 / float64(plane)
	for pi := 0; pi < n*c; pi++ {
		g := gd[pi] * inv
		dst := gid[pi*plane : (pi+1)*plane]
		for i := range dst {
			dst[i] = g
		}
	}
	return gradIn
}
