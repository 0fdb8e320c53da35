package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/minio"
	"github.com/2024aa05820/mlops-assignment2/pkg/training"

	custom_logger "github.com/2024aa05820/mlops-assignment2/pkg/logger"
)

var (
	configFile = flag.String("file", "config/config.yaml", "configuration file")
	dataDir    = flag.String("data-dir", "", "data directory holding train/ and val/")
	epochs     = flag.Int("epochs", 0, "override the configured epoch count")
	batchSize  = flag.Int("batch-size", 0, "override the configured batch size")
	lr         = flag.Float64("lr", 0, "override the configured learning rate")
)

func main() {
	flag.Parse()
	if err := config.Init(*configFile); err != nil {
		log.Fatal(err.Error())
	}

	if *dataDir != "" {
		config.Config.Train.DataDir = *dataDir
	}
	if *epochs > 0 {
		config.Config.Train.Epochs = *epochs
	}
	if *batchSize > 0 {
		config.Config.Train.BatchSize = *batchSize
	}
	if *lr > 0 {
		config.Config.Train.LearningRate = *lr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, _ := custom_logger.GetZapLogger(ctx)
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()

	workers := config.Config.Train.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trainCfg := training.Config{
		Epochs:       config.Config.Train.Epochs,
		BatchSize:    config.Config.Train.BatchSize,
		LearningRate: config.Config.Train.LearningRate,
		Workers:      workers,
		ImageSize:    config.Config.Model.ImageSize,
		NumClasses:   config.Config.Model.NumClasses,
		Dropout:      config.Config.Model.Dropout,
		ModelPath:    config.Config.Model.Path,
		Seed:         config.Config.Train.Seed,
	}

	trainSamples, err := training.ScanDir(filepath.Join(config.Config.Train.DataDir, "train"))
	if err != nil {
		logger.Fatal("scan training data", zap.Error(err))
	}
	valSamples, err := training.ScanDir(filepath.Join(config.Config.Train.DataDir, "val"))
	if err != nil {
		logger.Fatal("scan validation data", zap.Error(err))
	}

	rng := rand.New(rand.NewSource(trainCfg.Seed))
	trainSamples = training.Limit(trainSamples, config.Config.Train.MaxTrainSamples, rng)
	valSamples = training.Limit(valSamples, config.Config.Train.MaxValSamples, rng)

	logger.Info("dataset scanned",
		zap.String("data_dir", config.Config.Train.DataDir),
		zap.Int("train_samples", len(trainSamples)),
		zap.Int("val_samples", len(valSamples)))

	trainer := training.NewTrainer(trainCfg)
	report, err := trainer.Fit(ctx, trainSamples, valSamples)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}

	logger.Info("training complete",
		zap.Float64("best_val_accuracy", report.BestValAccuracy),
		zap.Int("best_epoch", report.BestEpoch),
		zap.String("model_path", trainCfg.ModelPath))

	if config.Config.Minio.Enabled {
		uploadCheckpoint(ctx, logger)
	}
}

// uploadCheckpoint pushes the best checkpoint to object storage so
// serving instances can pull it at startup.
func uploadCheckpoint(ctx context.Context, logger *zap.Logger) {
	client, err := minio.NewMinioClientAndInitBucket(ctx, &config.Config.Minio)
	if err != nil {
		logger.Warn("minio connection failed", zap.Error(err))
		return
	}
	if err := client.UploadFile(ctx, config.Config.Minio.Object, config.Config.Model.Path, "application/octet-stream"); err != nil {
		logger.Warn("checkpoint upload failed",
			zap.String("object", config.Config.Minio.Object), zap.Error(err))
		return
	}
	logger.Info("checkpoint uploaded to object storage",
		zap.String("object", config.Config.Minio.Object),
		zap.String("bucket", config.Config.Minio.BucketName))
}
