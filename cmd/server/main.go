package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/cache"
	"github.com/2024aa05820/mlops-assignment2/pkg/device"
	"github.com/2024aa05820/mlops-assignment2/pkg/handler"
	"github.com/2024aa05820/mlops-assignment2/pkg/metrics"
	"github.com/2024aa05820/mlops-assignment2/pkg/minio"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
	"github.com/2024aa05820/mlops-assignment2/pkg/repository"
	"github.com/2024aa05820/mlops-assignment2/pkg/service"

	database "github.com/2024aa05820/mlops-assignment2/pkg/db"
	custom_logger "github.com/2024aa05820/mlops-assignment2/pkg/logger"
)

func main() {
	if err := config.Init(config.ParseConfigFlag()); err != nil {
		log.Fatal(err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, _ := custom_logger.GetZapLogger(ctx)
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()

	if config.Config.Minio.Enabled {
		pullCheckpoint(ctx, logger)
	}

	dev, err := device.Select(config.Config.Model.Device)
	if err != nil {
		logger.Fatal("invalid device", zap.String("device", config.Config.Model.Device), zap.Error(err))
	}

	p := predictor.New()
	if err := p.Load(config.Config.Model.Path, dev); err != nil {
		// Keep serving; the health endpoints expose the degraded state.
		logger.Warn("model load failed, serving degraded",
			zap.String("path", config.Config.Model.Path), zap.Error(err))
	} else {
		logger.Info("model loaded",
			zap.String("path", p.Path()),
			zap.String("device", p.Device().String()),
			zap.Int("image_size", p.Config().ImageSize))
	}

	var repo repository.Repository
	if config.Config.Database.Enabled {
		db := database.GetSharedConnection()
		defer database.Close(db)
		if err := repository.Migrate(db); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		repo = repository.NewRepository(db)
	}

	var resultCache *cache.Cache
	if config.Config.Cache.Redis.Enabled {
		redisClient := redis.NewClient(&config.Config.Cache.Redis.RedisOptions)
		defer redisClient.Close()
		resultCache = cache.NewCache(redisClient, config.Config.Cache.Redis.TTL)
	}

	svc := service.NewService(p, resultCache, repo, metrics.New())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%v", config.Config.Server.Port),
		Handler: handler.SetupRouter(svc),
	}

	quitSig := make(chan os.Signal, 1)
	errSig := make(chan error)
	if config.Config.Server.HTTPS.Cert != "" && config.Config.Server.HTTPS.Key != "" {
		go func() {
			if err := httpServer.ListenAndServeTLS(config.Config.Server.HTTPS.Cert, config.Config.Server.HTTPS.Key); err != nil && err != http.ErrServerClosed {
				errSig <- err
			}
		}()
	} else {
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errSig <- err
			}
		}()
	}
	logger.Info("http server is running", zap.Int("port", config.Config.Server.Port))

	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be catch, so don't need add it
	signal.Notify(quitSig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errSig:
		logger.Error(fmt.Sprintf("Fatal error: %v\n", err))
	case <-quitSig:
		logger.Info("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}
}

// pullCheckpoint fetches the serving checkpoint from object storage
// when it is not already on local disk. Failures degrade to a
// not-ready server rather than aborting startup.
func pullCheckpoint(ctx context.Context, logger *zap.Logger) {
	if _, err := os.Stat(config.Config.Model.Path); err == nil {
		logger.Info("checkpoint already present, skipping pull",
			zap.String("path", config.Config.Model.Path))
		return
	}

	client, err := minio.NewMinioClientAndInitBucket(ctx, &config.Config.Minio)
	if err != nil {
		logger.Warn("minio connection failed", zap.Error(err))
		return
	}
	if err := client.DownloadFile(ctx, config.Config.Minio.Object, config.Config.Model.Path); err != nil {
		logger.Warn("checkpoint pull failed",
			zap.String("object", config.Config.Minio.Object), zap.Error(err))
		return
	}
	logger.Info("checkpoint pulled from object storage",
		zap.String("object", config.Config.Minio.Object),
		zap.String("path", config.Config.Model.Path))
}
