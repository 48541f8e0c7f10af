package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-recurve/internal/client"
	"github.com/23skdu/longbow-recurve/internal/lstm"
	"github.com/23skdu/longbow-recurve/internal/sequence"
)

var (
	rowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recurve_rows_processed_total",
		Help: "The total number of timestep rows served over HTTP",
	})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recurve_request_duration_seconds",
		Help:    "Time spent processing forward requests",
		Buckets: prometheus.DefBuckets,
	})
)

// FlightClientInterface abstracts the Longbow forwarding client.
type FlightClientInterface interface {
	PutStates(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

// ForwardRequest is the CBOR body of a /forward call. Input rows are
// concatenated in sequence order; lengths splits them into sequences.
type ForwardRequest struct {
	Lengths []int     `cbor:"lengths"`
	Input   []float64 `cbor:"input"`
	H0      []float64 `cbor:"h0,omitempty"`
	C0      []float64 `cbor:"c0,omitempty"`
}

// ForwardResponse carries per-row hidden and cell states, Dim values per
// row, in the same row order as the request.
type ForwardResponse struct {
	Hidden []float64 `cbor:"hidden"`
	Cell   []float64 `cbor:"cell"`
	Dim    int       `cbor:"dim"`
}

type Server struct {
	engine       *lstm.Engine
	flightClient FlightClientInterface
	datasetName  string
	alloc        memory.Allocator
	states       *client.StateRecordBuilder
	sem          *semaphore.Weighted
}

func NewServer(engine *lstm.Engine, fc FlightClientInterface, dataset string, maxConcurrent int) *Server {
	alloc := memory.NewGoAllocator()
	return &Server{
		engine:       engine,
		flightClient: fc,
		datasetName:  dataset,
		alloc:        alloc,
		states:       client.NewStateRecordBuilder(alloc, engine.Config().HiddenDim),
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func startServer(addr string, srv *Server) {
	// Schedule cache size tracks how many distinct batch shapes the
	// engine has seen.
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "recurve_schedule_cache_entries",
			Help: "Number of batch schedules currently cached",
		},
		func() float64 {
			return float64(srv.engine.ScheduleCacheSize())
		},
	))

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/forward", srv.handleForward)
	http.HandleFunc("/forward/arrow", srv.handleForwardArrow)
	http.HandleFunc("/health", srv.handleHealth)

	log.Info().Str("addr", addr).Msg("Starting Recurve Server")
	if srv.flightClient != nil {
		log.Info().Str("dataset", srv.datasetName).Msg("Forwarding final states to Longbow")
	}

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("recurve-server")

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleForward",
		trace.WithAttributes(attribute.String("codec", "cbor")))
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ForwardRequest
	decoder := cbor.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}

	if len(req.Lengths) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	layout, err := sequence.NewLayout(req.Lengths)
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.Int("sequence_count", layout.Seqs()),
		attribute.Int("timestep_count", layout.Total()),
	)

	// Admission control, weighted by timestep rows.
	weight := int64(layout.Total())
	if err := s.sem.Acquire(ctx, weight); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(weight)

	out, err := s.engine.Forward(lstm.Input{X: req.Input, Layout: layout, H0: req.H0, C0: req.C0})
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
		return
	}
	rowsProcessed.Add(float64(layout.Total()))

	if s.flightClient != nil {
		if err := s.forwardToLongbow(ctx, layout, out); err != nil {
			log.Error().Err(err).Msg("Error forwarding states to Longbow")
		}
	}

	resp := ForwardResponse{Hidden: out.Hidden, Cell: out.Cell, Dim: s.engine.Config().HiddenDim}
	data, err := cbor.Marshal(resp)
	out.Release()
	if err != nil {
		span.RecordError(err)
		http.Error(w, "Encoding failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(data)
}

// forwardToLongbow ships each sequence's final state downstream.
func (s *Server) forwardToLongbow(ctx context.Context, layout *sequence.Layout, out *lstm.Output) error {
	rb, err := s.states.BuildFinalStates(layout, out.Hidden, out.Cell, s.engine.Config().Reverse)
	if err != nil || rb == nil {
		return err
	}
	defer rb.Release()

	return s.flightClient.PutStates(ctx, s.datasetName, rb)
}

func (s *Server) handleForwardArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleForwardArrow",
		trace.WithAttributes(attribute.String("codec", "arrow")))
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reader, err := ipc.NewReader(r.Body, ipc.WithAllocator(s.alloc))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create IPC reader: %v", err), http.StatusBadRequest)
		return
	}
	defer reader.Release()

	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	writer := ipc.NewWriter(w, ipc.WithSchema(s.states.Schema()))
	defer writer.Close()

	totalRows := 0
	for reader.Next() {
		rec := reader.Record()
		layout, x, err := batchFromRecord(rec, s.engine.Config().InputDim)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed record batch")
			continue
		}

		weight := int64(layout.Total())
		if err := s.sem.Acquire(ctx, weight); err != nil {
			log.Error().Err(err).Msg("Failed to acquire semaphore for arrow batch")
			break
		}
		out, err := s.engine.Forward(lstm.Input{X: x, Layout: layout})
		s.sem.Release(weight)
		if err != nil {
			log.Error().Err(err).Msg("Forward pass failed for arrow batch")
			continue
		}
		rowsProcessed.Add(float64(layout.Total()))

		if s.flightClient != nil {
			if err := s.forwardToLongbow(ctx, layout, out); err != nil {
				log.Error().Err(err).Msg("Error forwarding states to Longbow")
			}
		}

		outRec, err := s.states.BuildRows(layout, out.Hidden, out.Cell)
		out.Release()
		if err != nil {
			log.Error().Err(err).Msg("Failed to build response record")
			continue
		}
		if err := writer.Write(outRec); err != nil {
			outRec.Release()
			log.Error().Err(err).Msg("Failed to write response record")
			break
		}
		outRec.Release()
		totalRows += layout.Total()
	}

	if reader.Err() != nil {
		log.Error().Err(reader.Err()).Msg("Error reading Arrow stream")
	}
	span.SetAttributes(attribute.Int("row_count", totalRows))
}

// batchFromRecord decodes a ragged batch from an Arrow record with a
// "sequence" int32 column and an "input" fixed-size-list column. Rows of
// one sequence must be adjacent; each run of equal ids becomes one
// sequence.
func batchFromRecord(rec arrow.RecordBatch, inputDim int) (*sequence.Layout, []float64, error) {
	idxSeq := rec.Schema().FieldIndices("sequence")
	idxIn := rec.Schema().FieldIndices("input")
	if len(idxSeq) == 0 || len(idxIn) == 0 {
		return nil, nil, fmt.Errorf("record needs sequence and input columns")
	}

	ids, ok := rec.Column(idxSeq[0]).(*array.Int32)
	if !ok {
		return nil, nil, fmt.Errorf("sequence column is not int32")
	}
	fsl, ok := rec.Column(idxIn[0]).(*array.FixedSizeList)
	if !ok {
		return nil, nil, fmt.Errorf("input column is not a fixed size list")
	}
	listType := fsl.DataType().(*arrow.FixedSizeListType)
	if int(listType.Len()) != inputDim {
		return nil, nil, fmt.Errorf("input width %d does not match engine input dim %d", listType.Len(), inputDim)
	}
	values, ok := fsl.ListValues().(*array.Float64)
	if !ok {
		return nil, nil, fmt.Errorf("input values are not float64")
	}

	var lengths []int
	for i := 0; i < ids.Len(); i++ {
		if i == 0 || ids.Value(i) != ids.Value(i-1) {
			lengths = append(lengths, 1)
		} else {
			lengths[len(lengths)-1]++
		}
	}
	layout, err := sequence.NewLayout(lengths)
	if err != nil {
		return nil, nil, err
	}

	x := make([]float64, layout.Total()*inputDim)
	copy(x, values.Float64Values())
	return layout, x, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
