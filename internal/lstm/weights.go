package lstm

import "fmt"

// Weights holds the row-major parameters of one engine. Within each
// 4*HiddenDim-wide gate row the blocks are ordered candidate, input,
// forget, output.
type Weights struct {
	// WX projects input rows onto gate rows, InputDim x 4*HiddenDim.
	WX []float64
	// WH projects the previous hidden row onto gate rows,
	// HiddenDim x 4*HiddenDim.
	WH []float64
	// Bias is one 4*HiddenDim gate bias row. With peepholes enabled it
	// is followed by three HiddenDim-wide blocks: the input, forget and
	// output gate peephole weights.
	Bias []float64
}

func (w Weights) validate(cfg Config) error {
	d4 := cfg.GateDim()
	if want := cfg.InputDim * d4; len(w.WX) != want {
		return fmt.Errorf("lstm: input projection has %d values, want %dx%d=%d",
			len(w.WX), cfg.InputDim, d4, want)
	}
	if want := cfg.HiddenDim * d4; len(w.WH) != want {
		return fmt.Errorf("lstm: recurrent projection has %d values, want %dx%d=%d",
			len(w.WH), cfg.HiddenDim, d4, want)
	}
	if want := cfg.biasLen(); len(w.Bias) != want {
		return fmt.Errorf("lstm: bias has %d values, want %d (peepholes %v)",
			len(w.Bias), want, cfg.UsePeepholes)
	}
	return nil
}
