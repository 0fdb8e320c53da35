package training_test

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2024aa05820/mlops-assignment2/pkg/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/pkg/device"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
	"github.com/2024aa05820/mlops-assignment2/pkg/training"
)

func TestBinaryMetricsKnownValues(t *testing.T) {
	labels := []int{0, 0, 1, 1}
	preds := []int{0, 1, 1, 1}

	accuracy, precision, recall, f1 := training.BinaryMetrics(labels, preds)
	assert.InDelta(t, 0.75, accuracy, 1e-12)
	assert.InDelta(t, 2.0/3.0, precision, 1e-12)
	assert.InDelta(t, 1.0, recall, 1e-12)
	assert.InDelta(t, 0.8, f1, 1e-12)
}

func TestBinaryMetricsZeroDenominators(t *testing.T) {
	accuracy, precision, recall, f1 := training.BinaryMetrics([]int{1, 1, 0}, []int{0, 0, 0})
	assert.InDelta(t, 1.0/3.0, accuracy, 1e-12)
	assert.Zero(t, precision)
	assert.Zero(t, recall)
	assert.Zero(t, f1)
}

func TestBinaryMetricsLengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		training.BinaryMetrics([]int{0, 1}, []int{0})
	})
}

// colorSet writes n solid images per class: reddish cats, bluish dogs.
func colorSet(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		writePNG(t, filepath.Join(dir, "cats", fmt.Sprintf("cat.%d.png", i)),
			color.NRGBA{R: uint8(200 + i*5), G: 30, B: 30, A: 255})
		writePNG(t, filepath.Join(dir, "dogs", fmt.Sprintf("dog.%d.png", i)),
			color.NRGBA{R: 30, G: 30, B: uint8(200 + i*5), A: 255})
	}
}

func smokeConfig(modelPath string) training.Config {
	cfg := training.DefaultConfig()
	cfg.Epochs = 3
	cfg.BatchSize = 4
	cfg.ImageSize = 16
	cfg.Workers = 2
	cfg.ModelPath = modelPath
	cfg.Seed = 1
	return cfg
}

func TestTrainerFitOnSeparableColors(t *testing.T) {
	root := t.TempDir()
	colorSet(t, filepath.Join(root, "train"), 6)
	colorSet(t, filepath.Join(root, "val"), 2)

	trainSamples, err := training.ScanDir(filepath.Join(root, "train"))
	require.NoError(t, err)
	valSamples, err := training.ScanDir(filepath.Join(root, "val"))
	require.NoError(t, err)

	modelPath := filepath.Join(root, "models", "best_model.ckpt")
	trainer := training.NewTrainer(smokeConfig(modelPath))

	report, err := trainer.Fit(context.Background(), trainSamples, valSamples)
	require.NoError(t, err)
	require.Len(t, report.Epochs, 3)

	first := report.Epochs[0]
	last := report.Epochs[len(report.Epochs)-1]
	assert.Less(t, last.TrainLoss, first.TrainLoss)

	// The best checkpoint must exist and round-trip through the
	// serving path.
	require.FileExists(t, modelPath)
	ckpt, err := checkpoint.Load(modelPath)
	require.NoError(t, err)
	assert.Equal(t, report.BestValAccuracy, ckpt.ValAccuracy)
	assert.Equal(t, report.BestEpoch, ckpt.Epoch)
	assert.Equal(t, 16, ckpt.Config.ImageSize)

	p := predictor.New()
	require.NoError(t, p.Load(modelPath, device.Default()))

	data, err := os.ReadFile(trainSamples[0].Path)
	require.NoError(t, err)
	result, err := p.Predict(data)
	require.NoError(t, err)
	assert.Contains(t, []string{"cat", "dog"}, result.Prediction)
}

func TestTrainerFitRejectsEmptySets(t *testing.T) {
	trainer := training.NewTrainer(smokeConfig(filepath.Join(t.TempDir(), "m.ckpt")))

	_, err := trainer.Fit(context.Background(), nil, []training.Sample{{}})
	assert.Error(t, err)

	_, err = trainer.Fit(context.Background(), []training.Sample{{}}, nil)
	assert.Error(t, err)
}

func TestTrainerFitHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	colorSet(t, filepath.Join(root, "train"), 2)
	colorSet(t, filepath.Join(root, "val"), 1)

	trainSamples, err := training.ScanDir(filepath.Join(root, "train"))
	require.NoError(t, err)
	valSamples, err := training.ScanDir(filepath.Join(root, "val"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainer := training.NewTrainer(smokeConfig(filepath.Join(root, "m.ckpt")))
	_, err = trainer.Fit(ctx, trainSamples, valSamples)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateRejectsEmptyLoader(t *testing.T) {
	trainer := training.NewTrainer(smokeConfig(filepath.Join(t.TempDir(), "m.ckpt")))
	loader := training.NewLoader(nil, 16, 4, 1, false)

	_, err := trainer.Evaluate(context.Background(), loader)
	assert.Error(t, err)
}
