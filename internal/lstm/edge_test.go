package lstm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-recurve/internal/sequence"
)

func TestNewRejectsBadConfig(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	good := Config{InputDim: 2, HiddenDim: 3}
	w := SynthWeights(rng, good)

	_, err := New(Config{InputDim: 0, HiddenDim: 3}, w)
	assert.Error(t, err)

	_, err = New(Config{InputDim: 2, HiddenDim: -1}, w)
	assert.Error(t, err)

	_, err = New(Config{InputDim: 2, HiddenDim: 3, GateActivation: "softmax"}, w)
	assert.Error(t, err)
}

func TestNewRejectsBadWeights(t *testing.T) {
	cfg := Config{InputDim: 2, HiddenDim: 3}
	rng := rand.New(rand.NewSource(1))
	w := SynthWeights(rng, cfg)

	short := Weights{WX: w.WX[:len(w.WX)-1], WH: w.WH, Bias: w.Bias}
	_, err := New(cfg, short)
	assert.Error(t, err)

	short = Weights{WX: w.WX, WH: w.WH[:1], Bias: w.Bias}
	_, err = New(cfg, short)
	assert.Error(t, err)

	// Peephole config needs the extended bias row.
	cfgP := cfg
	cfgP.UsePeepholes = true
	_, err = New(cfgP, w)
	assert.Error(t, err)
}

func TestForwardRejectsBadInput(t *testing.T) {
	cfg := Config{InputDim: 2, HiddenDim: 3}
	rng := rand.New(rand.NewSource(2))
	eng, err := New(cfg, SynthWeights(rng, cfg))
	require.NoError(t, err)

	layout, err := sequence.NewLayout([]int{2, 1})
	require.NoError(t, err)
	x := make([]float64, layout.Total()*cfg.InputDim)

	_, err = eng.Forward(Input{X: x})
	assert.Error(t, err)

	_, err = eng.Forward(Input{X: x[:3], Layout: layout})
	assert.Error(t, err)

	h0 := make([]float64, layout.Seqs()*cfg.HiddenDim)
	_, err = eng.Forward(Input{X: x, Layout: layout, H0: h0})
	assert.Error(t, err)

	c0 := make([]float64, 1)
	_, err = eng.Forward(Input{X: x, Layout: layout, H0: h0, C0: c0})
	assert.Error(t, err)

	_, err = eng.Forward(Input{X: x, Layout: layout, H0: h0, C0: make([]float64, len(h0))})
	assert.NoError(t, err)
}

// A sequence's first timestep without initial state must not touch the
// forget gate at all. With identity activations a poisoned forget bias
// stays invisible on step one and would surface on any later step.
func TestFirstStepIgnoresForgetGate(t *testing.T) {
	cfg := Config{
		InputDim:            1,
		HiddenDim:           2,
		GateActivation:      "identity",
		CellActivation:      "identity",
		CandidateActivation: "identity",
	}
	w := Weights{
		WX:   make([]float64, cfg.InputDim*cfg.GateDim()),
		WH:   make([]float64, cfg.HiddenDim*cfg.GateDim()),
		Bias: make([]float64, cfg.GateDim()),
	}
	for i := range w.WX {
		w.WX[i] = 0.5
	}
	w.Bias[4] = math.NaN() // forget block spans [2d, 3d)
	w.Bias[5] = math.NaN()

	layout, err := sequence.NewLayout([]int{1, 1})
	require.NoError(t, err)
	x := []float64{0.3, -0.2}

	for _, useSeq := range []bool{true, false} {
		cfg.UseSeq = useSeq
		eng, err := New(cfg, w)
		require.NoError(t, err)
		out, err := eng.Forward(Input{X: x, Layout: layout})
		require.NoError(t, err)

		for i, v := range out.Hidden {
			assert.False(t, math.IsNaN(v), "hidden[%d] is NaN", i)
		}
		for i, v := range out.Cell {
			assert.False(t, math.IsNaN(v), "cell[%d] is NaN", i)
		}
		// With identity activations: ct = (x*wx)^2, ht = ct * (x*wx).
		assert.InDelta(t, 0.0225, out.Cell[0], 1e-15)
		assert.InDelta(t, 0.003375, out.Hidden[0], 1e-15)
		assert.InDelta(t, 0.01, out.Cell[2], 1e-15)
		assert.InDelta(t, -0.001, out.Hidden[2], 1e-15)
	}
}

func TestOutputReleaseAndReuse(t *testing.T) {
	cfg := Config{InputDim: 3, HiddenDim: 4}
	rng := rand.New(rand.NewSource(19))
	w := SynthWeights(rng, cfg)
	layout, x, err := SynthBatch(rng, 3, 1, 4, cfg.InputDim)
	require.NoError(t, err)
	in := Input{X: x, Layout: layout}

	eng, err := New(cfg, w)
	require.NoError(t, err)

	out, err := eng.Forward(in)
	require.NoError(t, err)
	wantH := append([]float64(nil), out.Hidden...)
	wantC := append([]float64(nil), out.Cell...)
	out.Release()
	assert.Nil(t, out.Hidden)
	assert.Nil(t, out.Schedule)

	// Recycled buffers must not leak stale values into the next pass.
	again, err := eng.Forward(in)
	require.NoError(t, err)
	assert.Equal(t, wantH, again.Hidden)
	assert.Equal(t, wantC, again.Cell)
	again.Release()
}
