// Package predictor wraps one loaded classifier behind a lifecycle
// the serving layer can reason about: construct, load exactly once,
// then answer any number of concurrent predictions against read-only
// weights.
package predictor

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/pkg/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/pkg/device"
	"github.com/2024aa05820/mlops-assignment2/pkg/nn"
	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
	"github.com/2024aa05820/mlops-assignment2/pkg/vision"
)

var (
	// ErrModelNotFound means the checkpoint path did not resolve to a
	// file. Fatal for the instance; the caller decides whether the
	// process keeps serving in a degraded state.
	ErrModelNotFound = errors.New("model checkpoint not found")

	// ErrCorruptCheckpoint means the checkpoint existed but could not
	// be decoded, carried an invalid config, or its state dict did
	// not match the architecture. Same handling as ErrModelNotFound.
	ErrCorruptCheckpoint = errors.New("model checkpoint is corrupt")

	// ErrNotReady is returned by predictions before a successful
	// Load. Per-request; never fatal.
	ErrNotReady = errors.New("model not loaded")
)

// classNames maps class indices to labels for the stock binary
// model. Index 0 is cat, index 1 is dog; the training dataset layout
// fixes this order.
var classNames = []string{"cat", "dog"}

// Result is one classification outcome.
type Result struct {
	Prediction    string
	Probability   float64
	Confidence    float64
	Probabilities map[string]float64
}

// Predictor owns a loaded model, its device, and the config embedded
// in its checkpoint. The zero value is unloaded; use New.
type Predictor struct {
	mu       sync.Mutex
	attempts int
	loadErr  error
	ready    atomic.Bool

	model   *nn.Classifier
	dev     device.Device
	cfg     checkpoint.Config
	path    string
	classes []string
}

// New returns an unloaded predictor.
func New() *Predictor {
	return &Predictor{}
}

// Load reads the checkpoint at path, rebuilds the architecture from
// its embedded config, and moves the predictor to the ready state.
// It may be called at most once per instance; a failed load is
// terminal and retained for LoadError.
func (p *Predictor) Load(path string, dev device.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempts > 0 {
		return errors.New("predictor: Load may only be called once")
	}
	p.attempts++

	if err := p.load(path, dev); err != nil {
		p.loadErr = err
		return err
	}
	p.ready.Store(true)
	return nil
}

func (p *Predictor) load(path string, dev device.Device) error {
	ckpt, err := checkpoint.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(ErrModelNotFound, "checkpoint %s", path)
		}
		return errors.Wrapf(ErrCorruptCheckpoint, "checkpoint %s: %v", path, err)
	}

	// Init values are irrelevant here, LoadStateDict overwrites them.
	model := nn.New(ckpt.Config.NumClasses, ckpt.Config.Dropout, rand.New(rand.NewSource(1)))
	if err := model.LoadStateDict(ckpt.StateDict); err != nil {
		return errors.Wrapf(ErrCorruptCheckpoint, "checkpoint %s: %v", path, err)
	}
	model.Eval()

	p.model = model
	p.dev = dev
	p.cfg = ckpt.Config
	p.path = path
	p.classes = labelsFor(ckpt.Config.NumClasses)
	return nil
}

func labelsFor(numClasses int) []string {
	if numClasses == len(classNames) {
		return classNames
	}
	labels := make([]string, numClasses)
	for i := range labels {
		labels[i] = fmt.Sprintf("class_%d", i)
	}
	return labels
}

// IsReady reports whether a model is loaded. Safe to call from any
// goroutine at any frequency.
func (p *Predictor) IsReady() bool {
	return p.ready.Load()
}

// LoadError returns the terminal error of a failed Load, or nil.
func (p *Predictor) LoadError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// Path returns the checkpoint path of a successful Load.
func (p *Predictor) Path() string { return p.path }

// Device returns the device chosen at load time.
func (p *Predictor) Device() device.Device { return p.dev }

// Config returns the config embedded in the loaded checkpoint.
func (p *Predictor) Config() checkpoint.Config { return p.cfg }

// Classes returns the class labels in index order.
func (p *Predictor) Classes() []string {
	out := make([]string, len(p.classes))
	copy(out, p.classes)
	return out
}

// Predict classifies one encoded image. Decode failures surface
// vision.ErrDecode; calls before a successful Load return ErrNotReady.
func (p *Predictor) Predict(data []byte) (*Result, error) {
	if !p.ready.Load() {
		return nil, ErrNotReady
	}
	x, err := vision.Preprocess(data, p.cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	return p.predict(x), nil
}

// PredictFile classifies the image file at path.
func (p *Predictor) PredictFile(path string) (*Result, error) {
	if !p.ready.Load() {
		return nil, ErrNotReady
	}
	x, err := vision.PreprocessFile(path, p.cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	return p.predict(x), nil
}

func (p *Predictor) predict(x *tensor.Tensor) *Result {
	shape := x.Shape()
	batch := x.Reshape(1, shape[0], shape[1], shape[2])

	probs := p.model.PredictProba(batch, p.dev.Workers())
	row := probs.Data()

	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}

	probabilities := make(map[string]float64, len(p.classes))
	for i, name := range p.classes {
		probabilities[name] = row[i]
	}

	return &Result{
		Prediction:    p.classes[best],
		Probability:   row[best],
		Confidence:    row[best],
		Probabilities: probabilities,
	}
}
