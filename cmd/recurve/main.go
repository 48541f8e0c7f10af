package main

import (
	"context"
	"flag"
	"io"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/23skdu/longbow-recurve/internal/client"
	"github.com/23skdu/longbow-recurve/internal/lstm"
)

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("recurve"),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func writeArrowStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	weightsPath := flag.String("weights", "", "Path to binary weights file (empty synthesizes weights from -seed)")
	inputDim := flag.Int("m", 32, "Input feature width per timestep row")
	hiddenDim := flag.Int("d", 8, "Hidden state width")
	peephole := flag.Bool("peephole", false, "Enable peephole connections")
	reverse := flag.Bool("reverse", false, "Walk each sequence from its last row to its first")
	useSeq := flag.Bool("use-seq", false, "Force the sequential driver instead of batched stepping")
	gateAct := flag.String("gate-act", lstm.DefaultGateActivation, "Gate activation (sigmoid, tanh, relu, identity)")
	cellAct := flag.String("cell-act", lstm.DefaultCellActivation, "Cell output activation")
	candAct := flag.String("cand-act", lstm.DefaultCandidateActivation, "Candidate activation")
	seqs := flag.Int("seqs", 16, "Number of sequences in the synthetic batch")
	minLen := flag.Int("min-len", 1, "Minimum synthetic sequence length")
	maxLen := flag.Int("max-len", 32, "Maximum synthetic sequence length")
	seed := flag.Int64("seed", 42, "Seed for synthetic weights and batches")
	soakDuration := flag.Duration("duration", 0, "Run forward passes in a loop for this long")
	cpuprofile := flag.String("cpuprofile", "", "Write CPU profile to file")
	listenAddr := flag.String("listen", "", "Start HTTP server on this address (e.g. :8080)")
	flightListen := flag.String("flight-listen", "", "Start Arrow Flight ingest server on this address")
	serverAddr := flag.String("server", "", "Longbow Flight server address for storing final states")
	datasetName := flag.String("dataset", "lstm_states", "Longbow dataset name for final states")
	maxConcurrent := flag.Int("max-concurrent", 4096, "Max in-flight timestep rows across HTTP requests")
	otelEnabled := flag.Bool("otel", false, "Enable OpenTelemetry tracing to stdout")
	flag.Parse()

	if *otelEnabled {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("Error shutting down tracer")
			}
		}()
		log.Info().Msg("OpenTelemetry tracing enabled")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	cfg := lstm.Config{
		InputDim:            *inputDim,
		HiddenDim:           *hiddenDim,
		UsePeepholes:        *peephole,
		Reverse:             *reverse,
		UseSeq:              *useSeq,
		GateActivation:      *gateAct,
		CellActivation:      *cellAct,
		CandidateActivation: *candAct,
	}

	rng := rand.New(rand.NewSource(*seed))
	var w lstm.Weights
	if *weightsPath != "" {
		var err error
		w, err = lstm.LoadWeights(*weightsPath, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load weights")
		}
		log.Info().Str("path", *weightsPath).Msg("Loaded weights")
	} else {
		w = lstm.SynthWeights(rng, cfg)
		log.Info().Int64("seed", *seed).Msg("Synthesized weights")
	}

	engine, err := lstm.New(cfg, w)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	if *flightListen != "" && *listenAddr == "" {
		StartFlightServer(*flightListen, engine)
		return
	}

	if *listenAddr != "" {
		if *flightListen != "" {
			go StartFlightServer(*flightListen, engine)
		}
		var fc FlightClientInterface
		if *serverAddr != "" {
			c, err := client.NewFlightClient(*serverAddr)
			if err != nil {
				log.Fatal().Err(err).Str("addr", *serverAddr).Msg("Failed to connect to Longbow")
			}
			defer c.Close()
			fc = c
		}
		startServer(*listenAddr, NewServer(engine, fc, *datasetName, *maxConcurrent))
		return
	}

	layout, x, err := lstm.SynthBatch(rng, *seqs, *minLen, *maxLen, cfg.InputDim)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to synthesize batch")
	}

	p := message.NewPrinter(language.English)

	if *soakDuration > 0 {
		log.Info().Dur("duration", *soakDuration).Int("sequences", layout.Seqs()).Int("rows", layout.Total()).Msg("Starting soak run")
		deadline := time.Now().Add(*soakDuration)
		start := time.Now()
		var iters, totalRows int
		for time.Now().Before(deadline) {
			out, err := engine.Forward(lstm.Input{X: x, Layout: layout})
			if err != nil {
				log.Fatal().Err(err).Msg("Forward pass failed")
			}
			out.Release()
			iters++
			totalRows += layout.Total()
			if iters%100 == 0 {
				log.Info().Int("iterations", iters).Str("rows", p.Sprintf("%d", totalRows)).Msg("Soak progress")
			}
		}
		elapsed := time.Since(start)
		log.Info().
			Int("iterations", iters).
			Str("total_rows", p.Sprintf("%d", totalRows)).
			Dur("elapsed", elapsed).
			Float64("rows_per_sec", float64(totalRows)/elapsed.Seconds()).
			Msg("Soak run complete")
		return
	}

	start := time.Now()
	out, err := engine.Forward(lstm.Input{X: x, Layout: layout})
	if err != nil {
		log.Fatal().Err(err).Msg("Forward pass failed")
	}
	elapsed := time.Since(start)
	log.Info().
		Int("sequences", layout.Seqs()).
		Str("rows", p.Sprintf("%d", layout.Total())).
		Dur("elapsed", elapsed).
		Float64("rows_per_sec", float64(layout.Total())/elapsed.Seconds()).
		Msg("Forward pass complete")

	builder := client.NewStateRecordBuilder(memory.NewGoAllocator(), cfg.HiddenDim)
	rb, err := builder.BuildFinalStates(layout, out.Hidden, out.Cell, cfg.Reverse)
	out.Release()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build final state record")
	}
	defer rb.Release()

	if *serverAddr != "" {
		c, err := client.NewFlightClient(*serverAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", *serverAddr).Msg("Failed to connect to Longbow")
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := c.PutStates(ctx, *datasetName, rb); err != nil {
			log.Fatal().Err(err).Msg("Failed to store final states")
		}
		log.Info().Str("dataset", *datasetName).Int("sequences", layout.Seqs()).Msg("Final states stored in Longbow")
		return
	}

	if err := writeArrowStream(os.Stdout, rb); err != nil {
		log.Fatal().Err(err).Msg("Failed to write Arrow stream")
	}
}
