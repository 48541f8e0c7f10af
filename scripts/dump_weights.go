//go:build ignore

package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/23skdu/longbow-recurve/internal/lstm"
)

// BlockDump summarizes one weight block for eyeballing against the
// exporter that produced the file.
type BlockDump struct {
	Name     string    `json:"name"`
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	FirstFew []float64 `json:"first_few"`
	LastFew  []float64 `json:"last_few"`
	Sum      float64   `json:"sum"`
}

func dump(name string, data []float64, rows, cols int) BlockDump {
	first := data
	if len(first) > 4 {
		first = first[:4]
	}
	last := data
	if len(last) > 4 {
		last = last[len(last)-4:]
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return BlockDump{Name: name, Rows: rows, Cols: cols, FirstFew: first, LastFew: last, Sum: sum}
}

func main() {
	weightsPath := flag.String("weights", "lstm.bin", "Path to weights binary")
	inputDim := flag.Int("m", 32, "Input feature width")
	hiddenDim := flag.Int("d", 8, "Hidden state width")
	peephole := flag.Bool("peephole", false, "Weights file includes peephole tail")
	flag.Parse()

	cfg := lstm.Config{InputDim: *inputDim, HiddenDim: *hiddenDim, UsePeepholes: *peephole}
	w, err := lstm.LoadWeights(*weightsPath, cfg)
	if err != nil {
		log.Fatalf("load %s: %v", *weightsPath, err)
	}

	d4 := cfg.GateDim()
	dumps := []BlockDump{
		dump("wx", w.WX, *inputDim, d4),
		dump("wh", w.WH, *hiddenDim, d4),
		dump("bias", w.Bias, 1, len(w.Bias)),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dumps); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
