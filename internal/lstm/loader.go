package lstm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// LoadWeights reads a raw little-endian float64 weight file laid out as
// the input projection, then the recurrent projection, then the bias row
// (with the peephole blocks appended when the config enables them).
func LoadWeights(path string, cfg Config) (Weights, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Weights{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Weights{}, err
	}
	defer file.Close()

	w, err := ReadWeights(file, cfg)
	if err != nil {
		return Weights{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// ReadWeights reads one weight set from r, sized for cfg.
func ReadWeights(r io.Reader, cfg Config) (Weights, error) {
	d4 := cfg.GateDim()
	w := Weights{
		WX:   make([]float64, cfg.InputDim*d4),
		WH:   make([]float64, cfg.HiddenDim*d4),
		Bias: make([]float64, cfg.biasLen()),
	}
	if err := binary.Read(r, binary.LittleEndian, w.WX); err != nil {
		return Weights{}, fmt.Errorf("read input projection: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, w.WH); err != nil {
		return Weights{}, fmt.Errorf("read recurrent projection: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, w.Bias); err != nil {
		return Weights{}, fmt.Errorf("read bias: %w", err)
	}
	return w, nil
}

// WriteWeights writes w to wr in the format ReadWeights expects.
func WriteWeights(wr io.Writer, w Weights) error {
	if err := binary.Write(wr, binary.LittleEndian, w.WX); err != nil {
		return fmt.Errorf("write input projection: %w", err)
	}
	if err := binary.Write(wr, binary.LittleEndian, w.WH); err != nil {
		return fmt.Errorf("write recurrent projection: %w", err)
	}
	if err := binary.Write(wr, binary.LittleEndian, w.Bias); err != nil {
		return fmt.Errorf("write bias: %w", err)
	}
	return nil
}
