package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/device"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
)

var (
	configFile = flag.String("file", "config/config.yaml", "configuration file")
	modelPath  = flag.String("model-path", "", "path to the checkpoint")
)

type output struct {
	File          string             `json:"file"`
	Prediction    string             `json:"prediction"`
	Probability   float64            `json:"probability"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] image...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := config.Init(*configFile); err != nil {
		log.Fatal(err.Error())
	}

	path := config.Config.Model.Path
	if *modelPath != "" {
		path = *modelPath
	}

	dev, err := device.Select(config.Config.Model.Device)
	if err != nil {
		log.Fatalf("invalid device %q: %v", config.Config.Model.Device, err)
	}

	p := predictor.New()
	if err := p.Load(path, dev); err != nil {
		log.Fatalf("load model %s: %v", path, err)
	}

	encoder := json.NewEncoder(os.Stdout)
	exitCode := 0
	for _, imagePath := range flag.Args() {
		result, err := p.PredictFile(imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", imagePath, err)
			exitCode = 1
			continue
		}
		if err := encoder.Encode(output{
			File:          imagePath,
			Prediction:    result.Prediction,
			Probability:   result.Probability,
			Confidence:    result.Confidence,
			Probabilities: result.Probabilities,
		}); err != nil {
			log.Fatal(err.Error())
		}
	}
	os.Exit(exitCode)
}
