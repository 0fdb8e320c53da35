package config

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/redis/go-redis/v9"
)

// ServerConfig defines HTTP server configurations
type ServerConfig struct {
	Port  int `koanf:"port"`
	HTTPS struct {
		Cert string `koanf:"cert"`
		Key  string `koanf:"key"`
	}
	CORSOrigins []string `koanf:"corsorigins"`
	Debug       bool     `koanf:"debug"`
	// MaxDataSize is the upload size cap in megabytes.
	MaxDataSize int `koanf:"maxdatasize"`
}

// ModelConfig points the server at a checkpoint and an execution
// device. The architecture fields are consumed by training; serving
// always trusts the snapshot embedded in the checkpoint.
type ModelConfig struct {
	// Path of the checkpoint to serve.
	Path string `koanf:"path"`
	// Device is auto, cpu or parallel.
	Device     string  `koanf:"device"`
	NumClasses int     `koanf:"numclasses"`
	Dropout    float64 `koanf:"dropout"`
	ImageSize  int     `koanf:"imagesize"`
}

// TrainConfig carries training hyperparameters and dataset locations.
type TrainConfig struct {
	// DataDir holds train/ and val/ class directories.
	DataDir         string  `koanf:"datadir"`
	Epochs          int     `koanf:"epochs"`
	BatchSize       int     `koanf:"batchsize"`
	LearningRate    float64 `koanf:"learningrate"`
	Workers         int     `koanf:"workers"`
	MaxTrainSamples int     `koanf:"maxtrainsamples"`
	MaxValSamples   int     `koanf:"maxvalsamples"`
	Seed            int64   `koanf:"seed"`
}

// DatabaseConfig related to the prediction audit database
type DatabaseConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	TimeZone string `koanf:"timezone"`
	Pool     struct {
		IdleConnections int           `koanf:"idleconnections"`
		MaxConnections  int           `koanf:"maxconnections"`
		ConnLifeTime    time.Duration `koanf:"connlifetime"`
	}
}

// CacheConfig related to the prediction result cache
type CacheConfig struct {
	Redis struct {
		Enabled      bool          `koanf:"enabled"`
		TTL          time.Duration `koanf:"ttl"`
		RedisOptions redis.Options `koanf:"redisoptions"`
	}
}

// MinioConfig related to the checkpoint artifact store
type MinioConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Host       string `koanf:"host"`
	Port       string `koanf:"port"`
	RootUser   string `koanf:"rootuser"`
	RootPwd    string `koanf:"rootpwd"`
	BucketName string `koanf:"bucketname"`
	Secure     bool   `koanf:"secure"`
	// Object is the checkpoint object key pulled at startup.
	Object string `koanf:"object"`
}

// AppConfig defines
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Model    ModelConfig    `koanf:"model"`
	Train    TrainConfig    `koanf:"train"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Minio    MinioConfig    `koanf:"minio"`
}

// Config - Global variable to export
var Config AppConfig

// Init - Assign global config to decoded config struct
func Init(filePath string) error {
	k := koanf.New(".")
	parser := yaml.Parser()

	if err := k.Load(confmap.Provider(map[string]any{
		"server.port":        8000,
		"server.maxdatasize": 12,
		"model.path":         "models/best_model.ckpt",
		"model.device":       "auto",
		"model.numclasses":   2,
		"model.dropout":      0.5,
		"model.imagesize":    224,
		"train.datadir":      "data",
		"train.epochs":       10,
		"train.batchsize":    32,
		"train.learningrate": 1e-3,
		"train.seed":         42,
		"cache.redis.ttl":    time.Hour,
	}, "."), nil); err != nil {
		log.Fatal(err.Error())
	}

	if err := k.Load(file.Provider(filePath), parser); err != nil {
		log.Fatal(err.Error())
	}

	if err := k.Load(env.ProviderWithValue("CFG_", ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CFG_")), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return err
	}

	if err := k.Unmarshal("", &Config); err != nil {
		return err
	}

	return ValidateConfig(&Config)
}

// ValidateConfig is for custom validation rules for the configuration
// for future use
func ValidateConfig(_ *AppConfig) error {
	return nil
}

var defaultConfigPath = "config/config.yaml"

// ParseConfigFlag allows clients to specify the relative path to the file from
// which the configuration will be loaded.
func ParseConfigFlag() string {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := fs.String("file", defaultConfigPath, "configuration file")
	flag.Parse()

	return *configPath
}
