package lstm

import (
	"gonum.org/v1/gonum/floats"

	"github.com/23skdu/longbow-recurve/internal/simd"
)

// stepper advances one sequence slot through one timestep. A gate row is
// consumed in place: [candidate | input | forget | output], each block d
// wide. The input and forget blocks double as scratch during the cell
// update, so a row's contents after a step are unspecified.
type stepper struct {
	d       int
	actGate simd.Activation
	actCell simd.Activation
	actCand simd.Activation

	// wc holds the peephole weight blocks [input | forget | output],
	// nil when peepholes are disabled.
	wc      []float64
	checked []float64

	fused bool
}

func (e *Engine) newStepper(fused bool) *stepper {
	s := &stepper{
		d:       e.cfg.HiddenDim,
		actGate: e.actGate,
		actCell: e.actCell,
		actCand: e.actCand,
		fused:   fused,
	}
	if e.cfg.UsePeepholes {
		s.wc = e.w.Bias[e.cfg.GateDim():]
		s.checked = make([]float64, 2*e.cfg.HiddenDim)
	}
	return s
}

// step computes ct and ht from a gate row and the previous cell state.
// gates must be 4*d wide; ctPrev, ct and ht exactly d wide.
func (s *stepper) step(gates, ctPrev, ct, ht []float64) {
	if s.fused {
		simd.FusedCtHt(gates, ctPrev, ct, ht)
		return
	}
	d := s.d
	if s.wc != nil {
		// Input and forget gates see the previous cell state through
		// their peephole weights before activation.
		floats.MulTo(s.checked[:d], s.wc[:d], ctPrev)
		floats.MulTo(s.checked[d:], s.wc[d:2*d], ctPrev)
		floats.Add(gates[d:3*d], s.checked)
		s.actGate(gates[d : 3*d])
		s.getCt(gates, ctPrev, ct)

		// The output gate sees the fresh cell state. Its peephole term
		// is staged in the spent input block.
		floats.MulTo(gates[d:2*d], s.wc[2*d:], ct)
		floats.Add(gates[3*d:], gates[d:2*d])
		s.actGate(gates[3*d:])
		s.getHt(gates, ct, ht)
		return
	}
	s.actGate(gates[d : 4*d])
	s.getCt(gates, ctPrev, ct)
	s.getHt(gates, ct, ht)
}

// stepInit handles a sequence's first timestep when no initial state is
// given. With nothing to forget only the input gate and candidate feed the
// cell update; the forget gate is never evaluated and the input and forget
// peephole terms are skipped.
func (s *stepper) stepInit(gates, ct, ht []float64) {
	d := s.d
	s.actGate(gates[d : 2*d])
	s.actCand(gates[:d])
	floats.MulTo(ct, gates[:d], gates[d:2*d])
	if s.wc != nil {
		floats.MulTo(gates[d:2*d], s.wc[2*d:], ct)
		floats.Add(gates[3*d:], gates[d:2*d])
	}
	s.actGate(gates[3*d:])
	s.getHt(gates, ct, ht)
}

// getCt activates the candidate block and combines it with the previous
// cell state: ct = cand*input + ctPrev*forget. The gate blocks hold the
// partial products.
func (s *stepper) getCt(gates, ctPrev, ct []float64) {
	d := s.d
	s.actCand(gates[:d])
	floats.Mul(gates[d:2*d], gates[:d])
	floats.Mul(gates[2*d:3*d], ctPrev)
	floats.AddTo(ct, gates[d:2*d], gates[2*d:3*d])
}

// getHt emits ht = actCell(ct) * output, staging the activated cell state
// in the spent forget block so ct itself stays intact.
func (s *stepper) getHt(gates, ct, ht []float64) {
	d := s.d
	copy(gates[2*d:3*d], ct)
	s.actCell(gates[2*d : 3*d])
	floats.MulTo(ht, gates[2*d:3*d], gates[3*d:])
}
