package main

import (
	"bytes"
	"context"
	"flag"
	"image"
	"image/color"
	"image/png"
	"log"

	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/pkg/device"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"

	custom_logger "github.com/2024aa05820/mlops-assignment2/pkg/logger"
)

// accuracyThreshold is the deployment gate: the checkpoint must beat
// random guessing on the validation set.
const accuracyThreshold = 0.50

var (
	configFile = flag.String("file", "config/config.yaml", "configuration file")
	modelPath  = flag.String("model-path", "", "path to the checkpoint to validate")
)

func main() {
	flag.Parse()
	if err := config.Init(*configFile); err != nil {
		log.Fatal(err.Error())
	}

	logger, _ := custom_logger.GetZapLogger(context.Background())
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()

	path := config.Config.Model.Path
	if *modelPath != "" {
		path = *modelPath
	}

	ckpt, err := checkpoint.Load(path)
	if err != nil {
		logger.Fatal("checkpoint failed to load", zap.String("path", path), zap.Error(err))
	}
	logger.Info("checkpoint loaded",
		zap.String("path", path),
		zap.Int("epoch", ckpt.Epoch),
		zap.Float64("val_accuracy", ckpt.ValAccuracy))

	if ckpt.ValAccuracy <= accuracyThreshold {
		logger.Fatal("validation accuracy below threshold",
			zap.Float64("val_accuracy", ckpt.ValAccuracy),
			zap.Float64("threshold", accuracyThreshold))
	}
	logger.Info("accuracy threshold passed",
		zap.Float64("val_accuracy", ckpt.ValAccuracy))

	dev, err := device.Select(config.Config.Model.Device)
	if err != nil {
		logger.Fatal("invalid device", zap.Error(err))
	}

	p := predictor.New()
	if err := p.Load(path, dev); err != nil {
		logger.Fatal("inference test failed to load model", zap.Error(err))
	}

	probe, err := solidRedPNG()
	if err != nil {
		logger.Fatal("inference test probe", zap.Error(err))
	}
	result, err := p.Predict(probe)
	if err != nil {
		logger.Fatal("inference test failed", zap.Error(err))
	}
	logger.Info("inference test passed",
		zap.String("predicted", result.Prediction),
		zap.Float64("confidence", result.Confidence))

	logger.Info("all validation checks passed")
}

func solidRedPNG() ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, 224, 224))
	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
