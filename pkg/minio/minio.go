package minio

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/config"

	log "github.com/2024aa05820/mlops-assignment2/pkg/logger"
)

// MinioI is the checkpoint artifact store: trained models are pushed
// after training and pulled by serving processes at startup.
type MinioI interface {
	GetClient() *minio.Client
	UploadFile(ctx context.Context, objectName string, filePath string, contentType string) error
	GetFile(ctx context.Context, objectName string) ([]byte, error)
	DownloadFile(ctx context.Context, objectName string, destPath string) error
}

const Location = "us-east-1"

type Minio struct {
	client *minio.Client
	bucket string
}

func NewMinioClientAndInitBucket(ctx context.Context, cfg *config.MinioConfig) (*Minio, error) {
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Initializing Minio client and bucket...")

	endpoint := cfg.Host + ":" + cfg.Port
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.RootUser, cfg.RootPwd, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		logger.Error("cannot connect to minio",
			zap.String("host:port", endpoint),
			zap.String("user", cfg.RootUser),
			zap.Error(err))
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		logger.Error("failed in checking BucketExists", zap.Error(err))
		return nil, err
	}
	if exists {
		logger.Info("Bucket already exists", zap.String("bucket", cfg.BucketName))
		return &Minio{client: client, bucket: cfg.BucketName}, nil
	}

	if err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: Location}); err != nil {
		logger.Error("creating Bucket failed", zap.Error(err))
		return nil, err
	}
	logger.Info("Successfully created bucket", zap.String("bucket", cfg.BucketName))

	return &Minio{client: client, bucket: cfg.BucketName}, nil
}

func (m *Minio) GetClient() *minio.Client {
	return m.client
}

// UploadFile pushes a local file into the bucket.
func (m *Minio) UploadFile(ctx context.Context, objectName string, filePath string, contentType string) error {
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return err
	}

	_, err = m.client.FPutObject(ctx, m.bucket, objectName, filePath,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		logger.Error("Failed to upload file to MinIO",
			zap.String("object", objectName), zap.Error(err))
		return err
	}
	return nil
}

// GetFile reads a whole object into memory.
func (m *Minio) GetFile(ctx context.Context, objectName string) ([]byte, error) {
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return nil, err
	}

	object, err := m.client.GetObject(ctx, m.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("Failed to get file from MinIO", zap.Error(err))
		return nil, err
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err = io.Copy(buf, object); err != nil {
		logger.Error("Failed to read file from MinIO", zap.Error(err))
		return nil, err
	}

	return buf.Bytes(), nil
}

// DownloadFile streams an object to a local path, creating parent
// directories as needed.
func (m *Minio) DownloadFile(ctx context.Context, objectName string, destPath string) error {
	logger, err := log.GetZapLogger(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	if err := m.client.FGetObject(ctx, m.bucket, objectName, destPath, minio.GetObjectOptions{}); err != nil {
		logger.Error("Failed to download file from MinIO",
			zap.String("object", objectName), zap.Error(err))
		return err
	}
	return nil
}
