package minio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/minio"
)

func TestMinio(t *testing.T) {
	t.Skipf("only for testing on local")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc, err := minio.NewMinioClientAndInitBucket(ctx, &config.MinioConfig{
		Host:       "localhost",
		Port:       "19000",
		RootUser:   "minioadmin",
		RootPwd:    "minioadmin",
		BucketName: "model-artifacts",
	})

	require.NoError(t, err)

	t.Log("test upload checkpoint to minio")
	objectName, _ := uuid.NewV4()

	payload := []byte("checkpoint bytes")
	src := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	err = mc.UploadFile(ctx, objectName.String(), src, "application/octet-stream")
	require.NoError(t, err)

	fileBytes, err := mc.GetFile(ctx, objectName.String())
	require.NoError(t, err)
	require.Equal(t, payload, fileBytes)

	dest := filepath.Join(t.TempDir(), "models", "model.ckpt")
	require.NoError(t, mc.DownloadFile(ctx, objectName.String(), dest))

	onDisk, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}
