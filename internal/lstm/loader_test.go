package lstm

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsRoundTrip(t *testing.T) {
	cfg := Config{InputDim: 3, HiddenDim: 4, UsePeepholes: true}
	rng := rand.New(rand.NewSource(13))
	w := SynthWeights(rng, cfg)

	var buf bytes.Buffer
	require.NoError(t, WriteWeights(&buf, w))

	got, err := ReadWeights(&buf, cfg)
	require.NoError(t, err)
	assert.Equal(t, w.WX, got.WX)
	assert.Equal(t, w.WH, got.WH)
	assert.Equal(t, w.Bias, got.Bias)
}

func TestLoadWeightsFromFile(t *testing.T) {
	cfg := Config{InputDim: 2, HiddenDim: 3}
	rng := rand.New(rand.NewSource(23))
	w := SynthWeights(rng, cfg)

	path := filepath.Join(t.TempDir(), "weights.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWeights(f, w))
	require.NoError(t, f.Close())

	got, err := LoadWeights(path, cfg)
	require.NoError(t, err)

	eng, err := New(cfg, got)
	require.NoError(t, err)
	assert.Equal(t, cfg.InputDim, eng.Config().InputDim)
}

func TestLoadWeightsErrors(t *testing.T) {
	cfg := Config{InputDim: 2, HiddenDim: 3}

	_, err := LoadWeights(filepath.Join(t.TempDir(), "missing.bin"), cfg)
	assert.Error(t, err)

	// Truncated file: the recurrent projection read comes up short.
	path := filepath.Join(t.TempDir(), "short.bin")
	rng := rand.New(rand.NewSource(31))
	w := SynthWeights(rng, cfg)
	var buf bytes.Buffer
	require.NoError(t, WriteWeights(&buf, w))
	require.NoError(t, os.WriteFile(path, buf.Bytes()[:len(buf.Bytes())/2], 0o644))

	_, err = LoadWeights(path, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
