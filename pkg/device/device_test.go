package device_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2024aa05820/mlops-assignment2/pkg/device"
)

func TestSelectCPU(t *testing.T) {
	d, err := device.Select("cpu")
	require.NoError(t, err)

	assert.Equal(t, device.KindCPU, d.Kind())
	assert.Equal(t, 1, d.Workers())
	assert.Equal(t, "cpu", d.String())
}

func TestSelectParallel(t *testing.T) {
	d, err := device.Select("parallel")
	require.NoError(t, err)

	assert.Equal(t, device.KindParallel, d.Kind())
	assert.Equal(t, runtime.NumCPU(), d.Workers())
}

func TestSelectAuto(t *testing.T) {
	for _, name := range []string{"", "auto"} {
		d, err := device.Select(name)
		require.NoError(t, err)
		assert.Equal(t, device.Default(), d)
	}
}

func TestSelectUnknown(t *testing.T) {
	_, err := device.Select("tpu")

	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrUnknownDevice)
}
