package training_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2024aa05820/mlops-assignment2/pkg/training"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func labelsByClass(samples []training.Sample) map[int]int {
	counts := map[int]int{}
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}

func TestScanDirPluralNames(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cats", "cat.0.jpg"))
	touch(t, filepath.Join(dir, "cats", "cat.1.png"))
	touch(t, filepath.Join(dir, "dogs", "dog.0.jpeg"))

	samples, err := training.ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, map[int]int{0: 2, 1: 1}, labelsByClass(samples))
}

func TestScanDirSingularFallback(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cat", "a.jpg"))
	touch(t, filepath.Join(dir, "dog", "b.jpg"))

	samples, err := training.ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, labelsByClass(samples))
}

func TestScanDirFiltersNonImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cats", "cat.0.jpg"))
	touch(t, filepath.Join(dir, "cats", "cat.1.JPG"))
	touch(t, filepath.Join(dir, "cats", "notes.txt"))
	touch(t, filepath.Join(dir, "cats", "archive.zip"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cats", "nested"), 0o755))

	samples, err := training.ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	for _, s := range samples {
		assert.Equal(t, 0, s.Label)
	}
}

func TestScanDirMissingClassDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cats", "cat.0.jpg"))

	samples, err := training.ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 0, samples[0].Label)
}

func TestScanDirEmptyRoot(t *testing.T) {
	samples, err := training.ScanDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestLimit(t *testing.T) {
	samples := make([]training.Sample, 10)
	for i := range samples {
		samples[i] = training.Sample{Path: filepath.Join("x", "y"), Label: i % 2}
	}
	rng := rand.New(rand.NewSource(1))

	assert.Len(t, training.Limit(samples, 4, rng), 4)

	samples = make([]training.Sample, 10)
	assert.Len(t, training.Limit(samples, 0, rng), 10)
	assert.Len(t, training.Limit(samples, 20, rng), 10)
}
