// Package device selects the compute backend used for inference and
// training. There is no GPU path; the accelerated backend is
// multi-core parallel execution, with single-threaded CPU as the
// fallback.
package device

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Kind identifies a compute backend.
type Kind string

const (
	// KindCPU runs every operation single-threaded. Deterministic
	// ordering, easiest to debug.
	KindCPU Kind = "cpu"

	// KindParallel splits convolution and matrix work across worker
	// goroutines.
	KindParallel Kind = "parallel"
)

// minParallelCPUs is the core count below which auto-selection falls
// back to the single-threaded backend; goroutine overhead dominates
// otherwise.
const minParallelCPUs = 2

// ErrUnknownDevice is returned by Select for an unrecognized device
// name.
var ErrUnknownDevice = errors.New("device: unknown device name")

// Device is an immutable compute-backend selection. The zero value is
// not valid; obtain one through Select or Default.
type Device struct {
	kind    Kind
	workers int
}

// Select resolves a configured device name. Valid names are "auto"
// (or empty), "cpu" and "parallel". Auto prefers the parallel backend
// when more than one CPU is available.
func Select(name string) (Device, error) {
	switch name {
	case "", "auto":
		return Default(), nil
	case string(KindCPU):
		return Device{kind: KindCPU, workers: 1}, nil
	case string(KindParallel):
		return Device{kind: KindParallel, workers: runtime.NumCPU()}, nil
	default:
		return Device{}, errors.Wrapf(ErrUnknownDevice, "%q", name)
	}
}

// Default returns the preferred device for this host: parallel when
// multiple CPUs are available, otherwise single-threaded CPU.
func Default() Device {
	if n := runtime.NumCPU(); n >= minParallelCPUs {
		return Device{kind: KindParallel, workers: n}
	}
	return Device{kind: KindCPU, workers: 1}
}

// Kind returns the backend kind.
func (d Device) Kind() Kind {
	return d.kind
}

// Workers returns the number of worker goroutines operations may use.
// Always 1 for the CPU backend.
func (d Device) Workers() int {
	if d.workers < 1 {
		return 1
	}
	return d.workers
}

// String renders the device for logs and the readiness endpoint,
// e.g. "cpu" or "parallel(8)".
func (d Device) String() string {
	if d.kind == KindParallel {
		return fmt.Sprintf("%s(%d)", d.kind, d.Workers())
	}
	return string(d.kind)
}
