package vision

import (
	"image"
	"math"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// Training augmentation ranges. Applied to training data only; the
// inference path never sees them.
const (
	flipProbability    = 0.5
	maxRotationDegrees = 15.0
	jitterStrength     = 0.2
)

// PreprocessTraining is the augmenting variant of Preprocess used by
// the training loop. After the deterministic resize it applies, in
// order: horizontal flip (p=0.5), rotation within ±15° and color
// jitter (brightness, contrast, saturation each scaled by a factor in
// [0.8, 1.2]), all driven by the caller's rng, then normalizes.
func PreprocessTraining(data []byte, size int, rng *rand.Rand) (*tensor.Tensor, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	return normalize(augment(resizeRGB(img, size), rng)), nil
}

// PreprocessFileTraining is PreprocessTraining for an image on disk.
func PreprocessFileTraining(path string, size int, rng *rand.Rand) (*tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vision: read %s", path)
	}
	return PreprocessTraining(data, size, rng)
}

func augment(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
	if rng.Float64() < flipProbability {
		img = flipHorizontal(img)
	}

	angle := (rng.Float64()*2 - 1) * maxRotationDegrees
	img = rotate(img, angle)

	// Jitter factors are sampled per image; the application order is
	// fixed brightness, contrast, saturation.
	adjustBrightness(img, jitterFactor(rng))
	adjustContrast(img, jitterFactor(rng))
	adjustSaturation(img, jitterFactor(rng))

	return img
}

func jitterFactor(rng *rand.Rand) float64 {
	return 1 + (rng.Float64()*2-1)*jitterStrength
}

func flipHorizontal(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	w := b.Dx()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := 0; x < w; x++ {
			src := img.PixOffset(b.Min.X+x, y)
			dst := out.PixOffset(b.Max.X-1-x, y)
			copy(out.Pix[dst:dst+4], img.Pix[src:src+4])
		}
	}

	return out
}

// rotate turns the image by the given angle (degrees, counter
// clockwise) around its center, keeping the original bounds. Regions
// rotated in from outside the source are filled black.
func rotate(img *image.NRGBA, degrees float64) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2

	// Affine src->dst: rotate around (cx, cy).
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(out, m, img, b, draw.Src, nil)

	return out
}

func adjustBrightness(img *image.NRGBA, factor float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = clampByte(float64(img.Pix[i+c]) * factor)
		}
	}
}

// adjustContrast blends every channel toward the mean luma of the
// whole image: v' = mean + factor*(v - mean).
func adjustContrast(img *image.NRGBA, factor float64) {
	var sum float64
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		sum += luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		n++
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)

	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = clampByte(mean + factor*(float64(img.Pix[i+c])-mean))
		}
	}
}

// adjustSaturation blends every pixel toward its own luma:
// v' = gray + factor*(v - gray).
func adjustSaturation(img *image.NRGBA, factor float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		gray := luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = clampByte(gray + factor*(float64(img.Pix[i+c])-gray))
		}
	}
}

// luma is the ITU-R 601 grayscale weighting.
func luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
