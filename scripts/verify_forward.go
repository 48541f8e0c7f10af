//go:build ignore

package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type forwardRequest struct {
	Lengths []int     `cbor:"lengths"`
	Input   []float64 `cbor:"input"`
}

type forwardResponse struct {
	Hidden []float64 `cbor:"hidden"`
	Cell   []float64 `cbor:"cell"`
	Dim    int       `cbor:"dim"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "http://localhost:8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	// Two sequences of lengths 3 and 1, input width 32 to match the
	// server's default -m.
	const m = 32
	lengths := []int{3, 1}
	input := make([]float64, 4*m)
	for i := range input {
		input[i] = float64(i%7)*0.1 - 0.3
	}

	body, err := cbor.Marshal(forwardRequest{Lengths: lengths, Input: input})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode request")
	}

	log.Info().Str("addr", addr).Msg("Sending forward request")

	var res *http.Response
	for i := 0; i < 10; i++ {
		res, err = http.Post(addr+"/forward", "application/cbor", bytes.NewReader(body))
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Request failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reach server after retries")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(res.Body)
		log.Fatal().Int("status", res.StatusCode).Str("body", string(msg)).Msg("Server rejected request")
	}

	var resp forwardResponse
	if err := cbor.NewDecoder(res.Body).Decode(&resp); err != nil {
		log.Fatal().Err(err).Msg("Failed to decode response")
	}

	rows := len(resp.Hidden) / resp.Dim
	log.Info().Int("rows", rows).Int("dim", resp.Dim).Msg("Forward pass verified")
	for r := 0; r < rows; r++ {
		fmt.Printf("row %d hidden: %v\n", r, resp.Hidden[r*resp.Dim:(r+1)*resp.Dim])
	}
}
