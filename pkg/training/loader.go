package training

import (
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
	"github.com/2024aa05820/mlops-assignment2/pkg/vision"
)

// Batch is one preprocessed minibatch.
type Batch struct {
	Images *tensor.Tensor // (N, 3, S, S)
	Labels []int
}

// Loader turns a sample list into minibatches, decoding and
// preprocessing images on parallel workers. An augmenting loader
// applies the training-time transforms; a plain one is deterministic.
type Loader struct {
	samples   []Sample
	imageSize int
	batchSize int
	workers   int
	augment   bool
}

// NewLoader builds a loader over samples. Batch size and worker count
// are clamped to at least 1.
func NewLoader(samples []Sample, imageSize, batchSize, workers int, augment bool) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		samples:   samples,
		imageSize: imageSize,
		batchSize: batchSize,
		workers:   workers,
		augment:   augment,
	}
}

// Len returns the number of samples.
func (l *Loader) Len() int { return len(l.samples) }

// Batches returns the number of minibatches per epoch. The last batch
// may be smaller than the batch size.
func (l *Loader) Batches() int {
	return (len(l.samples) + l.batchSize - 1) / l.batchSize
}

// Shuffle permutes the sample order in place.
func (l *Loader) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(l.samples), func(i, j int) {
		l.samples[i], l.samples[j] = l.samples[j], l.samples[i]
	})
}

// Batch loads minibatch i. Augmentation randomness draws from rng;
// a non-augmenting loader accepts nil.
func (l *Loader) Batch(i int, rng *rand.Rand) (*Batch, error) {
	lo := i * l.batchSize
	hi := lo + l.batchSize
	if hi > len(l.samples) {
		hi = len(l.samples)
	}
	if lo < 0 || lo >= hi {
		return nil, errors.Errorf("batch %d out of range", i)
	}

	n := hi - lo
	planeSize := 3 * l.imageSize * l.imageSize
	images := tensor.New(n, 3, l.imageSize, l.imageSize)
	labels := make([]int, n)

	var g errgroup.Group
	g.SetLimit(l.workers)
	for j := 0; j < n; j++ {
		sample := l.samples[lo+j]
		labels[j] = sample.Label

		// rand.Rand is not goroutine safe; hand each worker its own
		// source seeded on the caller's goroutine.
		var seed int64
		if l.augment {
			seed = rng.Int63()
		}

		j := j
		g.Go(func() error {
			var (
				img *tensor.Tensor
				err error
			)
			if l.augment {
				img, err = vision.PreprocessFileTraining(sample.Path, l.imageSize, rand.New(rand.NewSource(seed)))
			} else {
				img, err = vision.PreprocessFile(sample.Path, l.imageSize)
			}
			if err != nil {
				return errors.Wrapf(err, "load %s", sample.Path)
			}
			copy(images.Data()[j*planeSize:(j+1)*planeSize], img.Data())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Batch{Images: images, Labels: labels}, nil
}
