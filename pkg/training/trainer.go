package training

import (
	"context"
	"math/rand"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/pkg/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/pkg/nn"
	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"

	custom_logger "github.com/2024aa05820/mlops-assignment2/pkg/logger"
)

// Config carries the hyperparameters for one training run.
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Workers      int
	ImageSize    int
	NumClasses   int
	Dropout      float64
	ModelPath    string
	Seed         int64
}

// DefaultConfig returns the stock hyperparameters.
func DefaultConfig() Config {
	return Config{
		Epochs:       10,
		BatchSize:    32,
		LearningRate: 1e-3,
		Workers:      runtime.NumCPU(),
		ImageSize:    224,
		NumClasses:   2,
		Dropout:      0.5,
		ModelPath:    "models/best_model.ckpt",
		Seed:         42,
	}
}

// EpochStats records the training and validation measures of one epoch.
type EpochStats struct {
	Epoch        int
	TrainLoss    float64
	TrainAcc     float64
	ValLoss      float64
	ValAccuracy  float64
	ValPrecision float64
	ValRecall    float64
	ValF1        float64
	LearningRate float64
}

// EvalStats summarizes one validation pass.
type EvalStats struct {
	Loss      float64
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// Report summarizes a completed run.
type Report struct {
	Epochs          []EpochStats
	BestValAccuracy float64
	BestEpoch       int
}

// Trainer owns the model and optimizer state for one run.
type Trainer struct {
	cfg   Config
	model *nn.Classifier
	opt   *nn.Adam
	sched *nn.PlateauScheduler
	rng   *rand.Rand
}

// NewTrainer builds a freshly initialized classifier and its optimizer
// from cfg. The learning rate halves after the validation loss stalls
// for more than two epochs.
func NewTrainer(cfg Config) *Trainer {
	rng := rand.New(rand.NewSource(cfg.Seed))
	model := nn.New(cfg.NumClasses, cfg.Dropout, rng)
	opt := nn.NewAdam(model.Parameters(), cfg.LearningRate)
	return &Trainer{
		cfg:   cfg,
		model: model,
		opt:   opt,
		sched: nn.NewPlateauScheduler(opt, 0.5, 2),
		rng:   rng,
	}
}

// Model exposes the classifier being trained.
func (t *Trainer) Model() *nn.Classifier { return t.model }

// Fit runs the optimization loop over trainSamples, validating on
// valSamples after every epoch. The checkpoint with the best
// validation accuracy is written to the configured model path.
func (t *Trainer) Fit(ctx context.Context, trainSamples, valSamples []Sample) (*Report, error) {
	logger, _ := custom_logger.GetZapLogger(ctx)

	if len(trainSamples) == 0 {
		return nil, errors.New("training: no training samples")
	}
	if len(valSamples) == 0 {
		return nil, errors.New("training: no validation samples")
	}

	train := NewLoader(trainSamples, t.cfg.ImageSize, t.cfg.BatchSize, t.cfg.Workers, true)
	val := NewLoader(valSamples, t.cfg.ImageSize, t.cfg.BatchSize, t.cfg.Workers, false)

	logger.Info("training started",
		zap.Int("train_samples", train.Len()),
		zap.Int("val_samples", val.Len()),
		zap.Int("epochs", t.cfg.Epochs),
		zap.Int("batch_size", t.cfg.BatchSize),
		zap.Float64("learning_rate", t.cfg.LearningRate),
		zap.Int("parameters", t.model.NumParameters()),
	)

	report := &Report{}
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		trainLoss, trainAcc, err := t.trainEpoch(ctx, train)
		if err != nil {
			return nil, err
		}

		valStats, err := t.Evaluate(ctx, val)
		if err != nil {
			return nil, err
		}

		if t.sched.Step(valStats.Loss) {
			logger.Info("learning rate reduced", zap.Float64("lr", t.opt.LR()))
		}

		report.Epochs = append(report.Epochs, EpochStats{
			Epoch:        epoch,
			TrainLoss:    trainLoss,
			TrainAcc:     trainAcc,
			ValLoss:      valStats.Loss,
			ValAccuracy:  valStats.Accuracy,
			ValPrecision: valStats.Precision,
			ValRecall:    valStats.Recall,
			ValF1:        valStats.F1,
			LearningRate: t.opt.LR(),
		})

		logger.Info("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float64("train_loss", trainLoss),
			zap.Float64("train_accuracy", trainAcc),
			zap.Float64("val_loss", valStats.Loss),
			zap.Float64("val_accuracy", valStats.Accuracy),
			zap.Float64("val_precision", valStats.Precision),
			zap.Float64("val_recall", valStats.Recall),
			zap.Float64("val_f1", valStats.F1),
			zap.Float64("lr", t.opt.LR()),
		)

		if valStats.Accuracy > report.BestValAccuracy {
			report.BestValAccuracy = valStats.Accuracy
			report.BestEpoch = epoch
			if err := t.saveCheckpoint(epoch, valStats.Accuracy); err != nil {
				return nil, err
			}
			logger.Info("new best model",
				zap.Float64("val_accuracy", valStats.Accuracy),
				zap.String("path", t.cfg.ModelPath))
		}
	}

	return report, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, loader *Loader) (float64, float64, error) {
	t.model.Train()
	loader.Shuffle(t.rng)

	var (
		totalLoss float64
		correct   int
		seen      int
	)
	for i := 0; i < loader.Batches(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		batch, err := loader.Batch(i, t.rng)
		if err != nil {
			return 0, 0, err
		}

		t.model.ZeroGrad()
		logits := t.model.ForwardTraining(batch.Images, t.rng, t.cfg.Workers)
		loss, grad := nn.CrossEntropyWithGrad(logits, batch.Labels)
		t.model.Backward(grad, t.cfg.Workers)
		t.opt.Step()

		totalLoss += loss
		correct += countCorrect(logits, batch.Labels)
		seen += len(batch.Labels)
	}

	return totalLoss / float64(loader.Batches()), float64(correct) / float64(seen), nil
}

// Evaluate runs one deterministic pass over loader in eval mode.
func (t *Trainer) Evaluate(ctx context.Context, loader *Loader) (*EvalStats, error) {
	if loader.Len() == 0 {
		return nil, errors.New("training: empty evaluation set")
	}
	t.model.Eval()

	var (
		totalLoss float64
		preds     []int
		labels    []int
	)
	for i := 0; i < loader.Batches(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := loader.Batch(i, nil)
		if err != nil {
			return nil, err
		}

		logits := t.model.Forward(batch.Images, t.cfg.Workers)
		totalLoss += nn.CrossEntropy(logits, batch.Labels)
		preds = append(preds, tensor.Argmax(logits)...)
		labels = append(labels, batch.Labels...)
	}

	accuracy, precision, recall, f1 := BinaryMetrics(labels, preds)
	return &EvalStats{
		Loss:      totalLoss / float64(loader.Batches()),
		Accuracy:  accuracy,
		Precision: precision,
		Recall:    recall,
		F1:        f1,
	}, nil
}

func (t *Trainer) saveCheckpoint(epoch int, valAcc float64) error {
	return checkpoint.Save(t.cfg.ModelPath, &checkpoint.Checkpoint{
		StateDict: t.model.StateDict(),
		Config: checkpoint.Config{
			NumClasses: t.cfg.NumClasses,
			Dropout:    t.cfg.Dropout,
			ImageSize:  t.cfg.ImageSize,
			ModelPath:  t.cfg.ModelPath,
		},
		Epoch:       epoch,
		ValAccuracy: valAcc,
	})
}

func countCorrect(logits *tensor.Tensor, labels []int) int {
	preds := tensor.Argmax(logits)
	correct := 0
	for i, pred := range preds {
		if pred == labels[i] {
			correct++
		}
	}
	return correct
}
