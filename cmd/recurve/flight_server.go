package main

import (
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-recurve/internal/lstm"
)

// RecurveFlightServer accepts ragged input batches over Arrow Flight and
// runs them through the engine.
type RecurveFlightServer struct {
	flight.BaseFlightServer
	engine *lstm.Engine
	alloc  memory.Allocator
}

func NewRecurveFlightServer(engine *lstm.Engine) *RecurveFlightServer {
	return &RecurveFlightServer{
		engine: engine,
		alloc:  memory.NewGoAllocator(),
	}
}

func (s *RecurveFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create flight record reader")
		return err
	}
	defer reader.Release()

	dataset := "default"
	if desc := reader.LatestFlightDescriptor(); desc != nil && len(desc.Path) > 0 {
		dataset = desc.Path[0]
	}

	totalRows := 0
	for reader.Next() {
		rec := reader.Record()
		layout, x, err := batchFromRecord(rec, s.engine.Config().InputDim)
		if err != nil {
			log.Warn().Err(err).Str("dataset", dataset).Msg("Skipping malformed flight batch")
			continue
		}

		out, err := s.engine.Forward(lstm.Input{X: x, Layout: layout})
		if err != nil {
			log.Error().Err(err).Str("dataset", dataset).Msg("Forward pass failed for flight batch")
			continue
		}
		out.Release()

		totalRows += layout.Total()
		log.Info().
			Str("dataset", dataset).
			Int("sequences", layout.Seqs()).
			Int("rows", layout.Total()).
			Msg("Processed flight batch")
	}
	if reader.Err() != nil {
		log.Error().Err(reader.Err()).Str("dataset", dataset).Msg("Error reading flight stream")
		return reader.Err()
	}

	log.Info().Str("dataset", dataset).Int("total_rows", totalRows).Msg("Flight stream complete")
	return nil
}

func StartFlightServer(addr string, engine *lstm.Engine) {
	srv := flight.NewServerWithMiddleware(nil)
	srv.RegisterFlightService(NewRecurveFlightServer(engine))
	if err := srv.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init flight server")
	}

	log.Info().Str("addr", srv.Addr().String()).Msg("Starting Recurve Flight Server")
	if err := srv.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
