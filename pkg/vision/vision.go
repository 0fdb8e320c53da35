// Package vision turns raw image bytes into the normalized tensors the
// classifier consumes. The inference path is fully deterministic; the
// training path adds randomized augmentation on top of it.
package vision

import (
	"bytes"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// DefaultImageSize is the input resolution the classifier was trained
// at, used when a checkpoint does not carry one.
const DefaultImageSize = 224

// Per-channel normalization constants (R, G, B). The trained weights
// were fit under these exact values; changing them invalidates every
// existing checkpoint.
var (
	Mean = [3]float64{0.485, 0.456, 0.406}
	Std  = [3]float64{0.229, 0.224, 0.225}
)

// ErrDecode indicates the payload is not a parseable image.
var ErrDecode = errors.New("vision: cannot decode image")

// Preprocess decodes raw image bytes, converts them to RGB, resizes to
// size x size (not aspect-preserving) and returns a normalized
// (3, size, size) tensor. The same bytes always produce the same
// tensor.
func Preprocess(data []byte, size int) (*tensor.Tensor, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	return normalize(resizeRGB(img, size)), nil
}

// PreprocessFile is Preprocess for an image on disk. File errors wrap
// the underlying fs error, so os.ErrNotExist stays observable.
func PreprocessFile(path string, size int) (*tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vision: read %s", path)
	}
	return Preprocess(data, size)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return img, nil
}

// resizeRGB converts any decoded color model to 8-bit RGB while
// scaling to size x size. Grayscale sources replicate the luma channel;
// alpha channels are dropped (straight, not premultiplied).
func resizeRGB(img image.Image, size int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// normalize scales 8-bit channels to [0,1] and standardizes each
// channel with the fixed mean/std constants, returning CHW layout.
func normalize(img *image.NRGBA) *tensor.Tensor {
	size := img.Bounds().Dx()
	out := tensor.New(3, size, size)
	data := out.Data()
	plane := size * size

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[i+c]) / 255.0
				data[c*plane+y*size+x] = (v - Mean[c]) / Std[c]
			}
		}
	}

	return out
}

// Denormalize inverts the normalization for visualization: values are
// un-standardized, clamped to [0,1], then scaled to 8-bit channels.
// The clamp runs before the byte scaling, so rounding can never push a
// channel outside [0,255].
func Denormalize(t *tensor.Tensor) (*image.NRGBA, error) {
	shape := t.Shape()
	if len(shape) != 3 || shape[0] != 3 || shape[1] != shape[2] {
		return nil, errors.Errorf("vision: Denormalize expects a (3, S, S) tensor, got %v", shape)
	}

	size := shape[1]
	plane := size * size
	data := t.Data()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := data[c*plane+y*size+x]*Std[c] + Mean[c]
				if v < 0 {
					v = 0
				} else if v > 1 {
					v = 1
				}
				img.Pix[i+c] = uint8(v*255 + 0.5)
			}
			img.Pix[i+3] = 0xff
		}
	}

	return img, nil
}
