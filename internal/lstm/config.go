// Package lstm implements a fused LSTM forward pass over ragged batches
// of variable-length sequences, with a sequence-at-a-time driver and a
// length-sorted batched driver that produce identical results.
package lstm

import (
	"fmt"

	"github.com/23skdu/longbow-recurve/internal/simd"
)

// Default nonlinearities, applied when a Config field is left empty.
const (
	DefaultGateActivation      = "sigmoid"
	DefaultCellActivation      = "tanh"
	DefaultCandidateActivation = "tanh"
)

// Config fixes the shape and behavior of an engine. The zero value is not
// usable; InputDim and HiddenDim must be set.
type Config struct {
	// InputDim is the width M of each input row.
	InputDim int
	// HiddenDim is the width D of each hidden and cell state row.
	HiddenDim int

	// UsePeepholes enables cell-to-gate peephole connections. The bias
	// vector then carries three extra HiddenDim-wide weight blocks.
	UsePeepholes bool

	// Reverse consumes each sequence from its last row to its first.
	// Output rows keep their original positions.
	Reverse bool

	// UseSeq selects the sequence-at-a-time driver over the batched one.
	UseSeq bool

	// Nonlinearities by name: "sigmoid", "tanh", "relu" or "identity".
	// Empty fields default to sigmoid for gates and tanh for the
	// candidate and cell outputs.
	GateActivation      string
	CellActivation      string
	CandidateActivation string
}

// GateDim returns 4*HiddenDim, the width of one row of gate
// pre-activations.
func (c Config) GateDim() int { return 4 * c.HiddenDim }

func (c Config) biasLen() int {
	if c.UsePeepholes {
		return 7 * c.HiddenDim
	}
	return 4 * c.HiddenDim
}

func (c Config) withDefaults() Config {
	if c.GateActivation == "" {
		c.GateActivation = DefaultGateActivation
	}
	if c.CellActivation == "" {
		c.CellActivation = DefaultCellActivation
	}
	if c.CandidateActivation == "" {
		c.CandidateActivation = DefaultCandidateActivation
	}
	return c
}

func (c Config) validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("lstm: input dim must be positive, got %d", c.InputDim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("lstm: hidden dim must be positive, got %d", c.HiddenDim)
	}
	for _, name := range []string{c.GateActivation, c.CellActivation, c.CandidateActivation} {
		if _, err := simd.ActivationFor(name); err != nil {
			return err
		}
	}
	return nil
}
