package training

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// classDirNames maps each label index to the directory names that may
// hold its images. Both singular and plural spellings occur in the
// common dataset layouts.
var classDirNames = [][]string{
	{"cat", "cats"},
	{"dog", "dogs"},
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Sample is one labeled image on disk.
type Sample struct {
	Path  string
	Label int
}

// ScanDir collects labeled samples under dir, expecting one
// subdirectory per class (cat/ or cats/, dog/ or dogs/). Files with
// non-image extensions are skipped. A missing class directory yields
// no samples for that class rather than an error.
func ScanDir(dir string) ([]Sample, error) {
	var samples []Sample
	for label, names := range classDirNames {
		classDir, ok := resolveClassDir(dir, names)
		if !ok {
			continue
		}

		entries, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "scan class directory %s", classDir)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				samples = append(samples, Sample{
					Path:  filepath.Join(classDir, entry.Name()),
					Label: label,
				})
			}
		}
	}
	return samples, nil
}

func resolveClassDir(dir string, names []string) (string, bool) {
	for _, name := range names {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Limit truncates samples to a random subset of at most n entries, so
// quick runs still see a class mix. It returns samples unchanged when
// n is zero or not smaller than the set.
func Limit(samples []Sample, n int, rng *rand.Rand) []Sample {
	if n <= 0 || n >= len(samples) {
		return samples
	}
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
	return samples[:n]
}
