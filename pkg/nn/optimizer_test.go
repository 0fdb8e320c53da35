package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

func TestAdamFirstStep(t *testing.T) {
	p := newParameter("w", 1)
	p.Value.Set(1, 0)
	p.ensureGrad()
	p.Grad[0] = 0.5

	opt := NewAdam([]*Parameter{p}, 0.1)
	opt.Step()

	// After bias correction the first step moves by lr*g/|g| = lr.
	assert.InDelta(t, 0.9, p.Value.At(0), 1e-6)
}

func TestAdamSkipsParamsWithoutGrad(t *testing.T) {
	p := newParameter("w", 2)
	p.Value.Set(3, 0)
	p.Value.Set(-3, 1)

	opt := NewAdam([]*Parameter{p}, 0.1)
	opt.Step()

	assert.Equal(t, 3.0, p.Value.At(0))
	assert.Equal(t, -3.0, p.Value.At(1))
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	// Minimize (x-2)^2 from x=10.
	p := newParameter("x", 1)
	p.Value.Set(10, 0)
	p.ensureGrad()

	opt := NewAdam([]*Parameter{p}, 0.1)
	for i := 0; i < 500; i++ {
		x := p.Value.At(0)
		p.Grad[0] = 2 * (x - 2)
		opt.Step()
	}

	assert.InDelta(t, 2, p.Value.At(0), 1e-2)
}

func TestPlateauSchedulerHalvesAfterPatience(t *testing.T) {
	opt := NewAdam(nil, 0.01)
	sched := NewPlateauScheduler(opt, 0.5, 2)

	assert.False(t, sched.Step(0.60))
	assert.False(t, sched.Step(0.50))

	// Three stalled epochs exceed patience 2.
	assert.False(t, sched.Step(0.50))
	assert.False(t, sched.Step(0.51))
	assert.True(t, sched.Step(0.50))
	assert.InDelta(t, 0.005, opt.LR(), 1e-12)

	// Counter resets after a reduction.
	assert.False(t, sched.Step(0.50))
	assert.False(t, sched.Step(0.50))
	assert.True(t, sched.Step(0.50))
	assert.InDelta(t, 0.0025, opt.LR(), 1e-12)
}

func TestPlateauSchedulerResetsOnImprovement(t *testing.T) {
	opt := NewAdam(nil, 0.01)
	sched := NewPlateauScheduler(opt, 0.5, 2)

	sched.Step(0.70)
	sched.Step(0.70)
	sched.Step(0.70)
	assert.False(t, sched.Step(0.50))
	assert.False(t, sched.Step(0.50))
	assert.False(t, sched.Step(0.50))
	assert.InDelta(t, 0.01, opt.LR(), 1e-12)
}

func TestCrossEntropyKnownValue(t *testing.T) {
	logits := tensor.FromSlice([]float64{1, 2}, 1, 2)
	loss, grad := CrossEntropyWithGrad(logits, []int{1})

	want := math.Log(1 + math.Exp(-1))
	assert.InDelta(t, want, loss, 1e-9)

	p := math.Exp(1) / (math.Exp(1) + math.Exp(2))
	require.Equal(t, []int{1, 2}, grad.Shape())
	assert.InDelta(t, p, grad.At(0, 0), 1e-9)
	assert.InDelta(t, p-1, grad.At(0, 1), 1e-9)
}

func TestCrossEntropyGradRowsSumToZero(t *testing.T) {
	logits := tensor.FromSlice([]float64{0.3, -1.2, 2.2, 0.1, 0.1, 0.1}, 2, 3)
	_, grad := CrossEntropyWithGrad(logits, []int{2, 0})

	for b := 0; b < 2; b++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			sum += grad.At(b, c)
		}
		assert.InDelta(t, 0, sum, 1e-12)
	}
}

func TestCrossEntropyStableForLargeLogits(t *testing.T) {
	logits := tensor.FromSlice([]float64{1000, 1001}, 1, 2)
	loss := CrossEntropy(logits, []int{1})

	assert.False(t, math.IsNaN(loss))
	assert.False(t, math.IsInf(loss, 0))
	assert.InDelta(t, math.Log(1+math.Exp(-1)), loss, 1e-9)
}

func TestCrossEntropyRejectsBadLabels(t *testing.T) {
	logits := tensor.New(2, 3)
	assert.Panics(t, func() { CrossEntropy(logits, []int{0}) })
	assert.Panics(t, func() { CrossEntropy(logits, []int{0, 3}) })
}
