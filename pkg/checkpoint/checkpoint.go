// Package checkpoint reads and writes model artifacts. A checkpoint
// is a single gob-encoded file holding the full state dict of a
// trained model together with the configuration it was trained under,
// so a serving process can rebuild the exact architecture without
// out-of-band knowledge.
package checkpoint

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// Config is the model configuration embedded in every checkpoint.
type Config struct {
	NumClasses int
	Dropout    float64
	ImageSize  int

	// ModelPath records where the artifact was written. Informational
	// only; loading never dereferences it.
	ModelPath string
}

// DefaultConfig returns the configuration the stock cat/dog model is
// trained with.
func DefaultConfig() Config {
	return Config{
		NumClasses: 2,
		Dropout:    0.5,
		ImageSize:  224,
	}
}

// Validate checks the embedded configuration for values the
// architecture cannot be instantiated from.
func (c Config) Validate() error {
	if c.NumClasses < 2 {
		return errors.Errorf("num classes must be >= 2, got %d", c.NumClasses)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	// Four halvings must leave at least one pixel.
	if c.ImageSize < 16 {
		return errors.Errorf("image size must be >= 16, got %d", c.ImageSize)
	}
	return nil
}

// Checkpoint is the in-memory form of a model artifact.
type Checkpoint struct {
	StateDict   map[string]*tensor.Tensor
	Config      Config
	Epoch       int
	ValAccuracy float64
}

// tensorRecord is the on-disk form of one tensor. gob needs exported
// fields, and keeping the wire type here leaves pkg/tensor free of
// serialization concerns.
type tensorRecord struct {
	Shape []int
	Data  []float64
}

type fileRecord struct {
	StateDict   map[string]tensorRecord
	Config      Config
	Epoch       int
	ValAccuracy float64
}

// Save writes the checkpoint to path, creating parent directories as
// needed. The file appears atomically: it is written to a temp file
// in the same directory and renamed over the target, so a concurrent
// reader never sees a half-written artifact.
func Save(path string, ckpt *Checkpoint) error {
	if err := ckpt.Config.Validate(); err != nil {
		return errors.Wrap(err, "invalid checkpoint config")
	}

	rec := fileRecord{
		StateDict:   make(map[string]tensorRecord, len(ckpt.StateDict)),
		Config:      ckpt.Config,
		Epoch:       ckpt.Epoch,
		ValAccuracy: ckpt.ValAccuracy,
	}
	for name, t := range ckpt.StateDict {
		rec.StateDict[name] = tensorRecord{Shape: t.Shape(), Data: t.Data()}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create checkpoint dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp checkpoint")
	}
	if err := gob.NewEncoder(tmp).Encode(rec); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "encode checkpoint %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "flush checkpoint %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "replace checkpoint %s", path)
	}
	return nil
}

// Load reads and validates a checkpoint from path. Missing files keep
// os.ErrNotExist observable through the error chain; anything that
// decodes but fails validation is reported as malformed.
func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint %s", path)
	}
	defer f.Close()

	var rec fileRecord
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return nil, errors.Wrapf(err, "decode checkpoint %s", path)
	}

	if err := rec.Config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "malformed checkpoint %s", path)
	}
	if len(rec.StateDict) == 0 {
		return nil, errors.Errorf("malformed checkpoint %s: empty state dict", path)
	}

	ckpt := &Checkpoint{
		StateDict:   make(map[string]*tensor.Tensor, len(rec.StateDict)),
		Config:      rec.Config,
		Epoch:       rec.Epoch,
		ValAccuracy: rec.ValAccuracy,
	}
	for name, t := range rec.StateDict {
		size := 1
		for _, dim := range t.Shape {
			if dim <= 0 {
				return nil, errors.Errorf("malformed checkpoint %s: tensor %q has shape %v", path, name, t.Shape)
			}
			size *= dim
		}
		if len(t.Data) != size {
			return nil, errors.Errorf("malformed checkpoint %s: tensor %q has %d values for shape %v",
				path, name, len(t.Data), t.Shape)
		}
		ckpt.StateDict[name] = tensor.FromSlice(t.Data, t.Shape...)
	}
	return ckpt, nil
}
