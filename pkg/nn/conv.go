package nn

import (
	"fmt"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// All convolutions in the architecture are 3x3, stride 1, padding 1,
// so spatial resolution is preserved and only the max-pools shrink it.
const (
	kernelSize  = 3
	convPadding = 1
)

// Conv2D is a 3x3 same-padding convolution layer.
type Conv2D struct {
	InChannels  int
	OutChannels int

	// Weight has shape (out, in, 3, 3); Bias has shape (out).
	Weight *Parameter
	Bias   *Parameter
}

func newConv2D(name string, inChannels, outChannels int) *Conv2D {
	return &Conv2D{
		InChannels:  inChannels,
		OutChannels: outChannels,
		Weight:      newParameter(name+".weight", outChannels, inChannels, kernelSize, kernelSize),
		Bias:        newParameter(name+".bias", outChannels),
	}
}

// Forward computes the convolution of x (N, in, H, W) into
// (N, out, H, W). Output planes are independent, so the work is split
// across workers plane by plane.
func (l *Conv2D) Forward(x *tensor.Tensor, workers int) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != l.InChannels {
		panic(fmt.Sprintf("nn: Conv2D expects (N, %d, H, W) input, got %v", l.InChannels, shape))
	}
	n, h, w := shape[0], shape[2], shape[3]

	out := tensor.New(n, l.OutChannels, h, w)

	xd := x.Data()
	od := out.Data()
	wd := l.Weight.Value.Data()
	bd := l.Bias.Value.Data()

	inC, outC := l.InChannels, l.OutChannels
	plane := h * w

	parallelFor(n*outC, workers, func(pi int) {
		b := pi / outC
		oc := pi % outC

		dst := od[(b*outC+oc)*plane : (b*outC+oc+1)*plane]
		for i := range dst {
			dst[i] = bd[oc]
		}

		for ic := 0; ic < inC; ic++ {
			src := xd[(b*inC+ic)*plane : (b*inC+ic+1)*plane]
			ker := wd[(oc*inC+ic)*kernelSize*kernelSize : (oc*inC+ic+1)*kernelSize*kernelSize]

			for ky := 0; ky < kernelSize; ky++ {
				for kx := 0; kx < kernelSize; kx++ {
					kv := ker[ky*kernelSize+kx]
					if kv == 0 {
						continue
					}
					// Source row/col offsets for this kernel tap.
					dy := ky - convPadding
					dx := kx - convPadding

					y0 := 0
					if dy < 0 {
						y0 = -dy
					}
					y1 := h
					if dy > 0 {
						y1 = h - dy
					}
					x0 := 0
					if dx < 0 {
						x0 = -dx
					}
					x1 := w
					if dx > 0 {
						x1 = w - dx
					}

					for y := y0; y < y1; y++ {
						srcRow := src[(y+dy)*w:]
						dstRow := dst[y*w:]
						for xx := x0; xx < x1; xx++ {
							dstRow[xx] += kv * srcRow[xx+dx]
						}
					}
				}
			}
		}
	})

	return out
}

// Backward computes input gradients from output gradients and
// accumulates weight/bias gradients. x must be the forward input.
func (l *Conv2D) Backward(x, gradOut *tensor.Tensor, workers int) *tensor.Tensor {
	shape := x.Shape()
	n, h, w := shape[0], shape[2], shape[3]
	inC, outC := l.InChannels, l.OutChannels
	plane := h * w

	xd := x.Data()
	gd := gradOut.Data()
	wd := l.Weight.Value.Data()

	gradIn := tensor.New(n, inC, h, w)
	gid := gradIn.Data()

	// dL/dx: every (batch, in-channel) plane is written by exactly one
	// worker iteration, so no synchronization is needed.
	parallelFor(n*inC, workers, func(pi int) {
		b := pi / inC
		ic := pi % inC

		dst := gid[(b*inC+ic)*plane : (b*inC+ic+1)*plane]
		for oc := 0; oc < outC; oc++ {
			src := gd[(b*outC+oc)*plane : (b*outC+oc+1)*plane]
			ker := wd[(oc*inC+ic)*kernelSize*kernelSize : (oc*inC+ic+1)*kernelSize*kernelSize]

			for ky := 0; ky < kernelSize; ky++ {
				for kx := 0; kx < kernelSize; kx++ {
					kv := ker[ky*kernelSize+kx]
					if kv == 0 {
						continue
					}
					// Transposed correlation: the tap that read input
					// (y, x) wrote output (y-dy, x-dx).
					dy := ky - convPadding
					dx := kx - convPadding

					y0 := 0
					if dy > 0 {
						y0 = dy
					}
					y1 := h
					if dy < 0 {
						y1 = h + dy
					}
					x0 := 0
					if dx > 0 {
						x0 = dx
					}
					x1 := w
					if dx < 0 {
						x1 = w + dx
					}

					for y := y0; y < y1; y++ {
						srcRow := src[(y-dy)*w:]
						dstRow := dst[y*w:]
						for xx := x0; xx < x1; xx++ {
							dstRow[xx] += kv * srcRow[xx-dx]
						}
					}
				}
			}
		}
	})

	// dL/dW and dL/db: each out-channel owns a distinct gradient
	// slice, so parallelizing over out-channels is race free.
	l.Weight.ensureGrad()
	l.Bias.ensureGrad()
	wg := l.Weight.Grad
	bg := l.Bias.Grad

	parallelFor(outC, workers, func(oc int) {
		for b := 0; b < n; b++ {
			src := gd[(b*outC+oc)*plane : (b*outC+oc+1)*plane]

			for _, v := range src {
				bg[oc] += v
			}

			for ic := 0; ic < inC; ic++ {
				in := xd[(b*inC+ic)*plane : (b*inC+ic+1)*plane]
				kg := wg[(oc*inC+ic)*kernelSize*kernelSize : (oc*inC+ic+1)*kernelSize*kernelSize]

				for ky := 0; ky < kernelSize; ky++ {
					for kx := 0; kx < kernelSize; kx++ {
						dy := ky - convPadding
						dx := kx - convPadding

						y0 := 0
						if dy < 0 {
							y0 = -dy
						}
						y1 := h
						if dy > 0 {
							y1 = h - dy
						}
						x0 := 0
						if dx < 0 {
							x0 = -dx
						}
						x1 := w
						if dx > 0 {
							x1 = w - dx
						}

						sum := 0.0
						for y := y0; y < y1; y++ {
							inRow := in[(y+dy)*w:]
							gRow := src[y*w:]
							for xx := x0; xx < x1; xx++ {
								sum += gRow[xx] * inRow[xx+dx]
							}
						}
						kg[ky*kernelSize+kx] += sum
					}
				}
			}
		}
	})

	return gradIn
}
