package simd

import "math"

// FusedDim is the hidden width the fused cell kernel is specialized for.
const FusedDim = 8

// FusedCtHt advances one recurrent timestep over a single row of gate
// pre-activations laid out as [candidate | input | forget | output], each
// block FusedDim wide. It applies sigmoid across the three gate blocks,
// tanh over the candidate block, then per lane computes
// ct = ctPrev*forget + cand*input and ht = tanh(ct)*output with the tanh
// expanded inline. The result matches composing the scalar kernels; only
// the instruction sequencing differs.
func FusedCtHt(gates, ctPrev, ct, ht []float64) {
	_ = gates[4*FusedDim-1]
	_ = ctPrev[FusedDim-1]
	_ = ct[FusedDim-1]
	_ = ht[FusedDim-1]

	VecSigmoid(gates[FusedDim : 4*FusedDim])
	VecTanh(gates[:FusedDim])

	cand := gates[:FusedDim]
	in := gates[FusedDim : 2*FusedDim]
	fg := gates[2*FusedDim : 3*FusedDim]
	og := gates[3*FusedDim : 4*FusedDim]
	for d := 0; d < FusedDim; d++ {
		c := ctPrev[d]*fg[d] + cand[d]*in[d]
		ct[d] = c
		t := 2 * c
		if t < sigmoidMin {
			t = sigmoidMin
		} else if t > sigmoidMax {
			t = sigmoidMax
		}
		ht[d] = (2.0/(1.0+math.Exp(-t)) - 1.0) * og[d]
	}
}
