package lstm

import (
	"math"
	"math/rand"

	"github.com/23skdu/longbow-recurve/internal/sequence"
)

// SynthWeights fills a weight set with Xavier-scaled uniform values and a
// small uniform bias. Deterministic for a seeded rng.
func SynthWeights(r *rand.Rand, cfg Config) Weights {
	cfg = cfg.withDefaults()
	d4 := cfg.GateDim()
	w := Weights{
		WX:   make([]float64, cfg.InputDim*d4),
		WH:   make([]float64, cfg.HiddenDim*d4),
		Bias: make([]float64, cfg.biasLen()),
	}
	xavierFill(r, w.WX, cfg.InputDim, d4)
	xavierFill(r, w.WH, cfg.HiddenDim, d4)
	for i := range w.Bias {
		w.Bias[i] = r.Float64()*0.2 - 0.1
	}
	return w
}

func xavierFill(r *rand.Rand, s []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range s {
		s[i] = r.Float64()*2*limit - limit
	}
}

// SynthBatch generates a ragged batch of seqs sequences with lengths
// drawn uniformly from [minLen, maxLen] and inputs from [-1, 1).
func SynthBatch(r *rand.Rand, seqs, minLen, maxLen, inputDim int) (*sequence.Layout, []float64, error) {
	lengths := make([]int, seqs)
	for i := range lengths {
		lengths[i] = minLen + r.Intn(maxLen-minLen+1)
	}
	layout, err := sequence.NewLayout(lengths)
	if err != nil {
		return nil, nil, err
	}
	x := make([]float64, layout.Total()*inputDim)
	for i := range x {
		x[i] = r.Float64()*2 - 1
	}
	return layout, x, nil
}

// SynthState generates one initial hidden and cell row per sequence.
func SynthState(r *rand.Rand, seqs, hiddenDim int) (h0, c0 []float64) {
	h0 = make([]float64, seqs*hiddenDim)
	c0 = make([]float64, seqs*hiddenDim)
	for i := range h0 {
		h0[i] = r.Float64()*2 - 1
		c0[i] = r.Float64()*2 - 1
	}
	return h0, c0
}
