package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-recurve/internal/sequence"
)

type mockFlightServer struct {
	flight.BaseFlightServer

	mu       sync.Mutex
	rows     int64
	datasets []string
}

func (s *mockFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return err
	}
	defer reader.Release()

	for reader.Next() {
		rec := reader.Record()
		s.mu.Lock()
		s.rows += rec.NumRows()
		if desc := reader.LatestFlightDescriptor(); desc != nil && len(desc.Path) > 0 {
			s.datasets = append(s.datasets, desc.Path[0])
		}
		s.mu.Unlock()
	}
	return reader.Err()
}

func TestFlightClientPutStates(t *testing.T) {
	mockServer := &mockFlightServer{}
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(mockServer)

	err := server.Init("localhost:0")
	require.NoError(t, err)
	go func() {
		_ = server.Serve()
	}()
	defer server.Shutdown()

	c, err := NewFlightClient(server.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	layout, err := sequence.NewLayout([]int{2, 1})
	require.NoError(t, err)
	builder := NewStateRecordBuilder(memory.NewGoAllocator(), 2)
	rb, err := builder.BuildFinalStates(layout,
		[]float64{0, 1, 10, 11, 20, 21},
		[]float64{100, 101, 110, 111, 120, 121}, false)
	require.NoError(t, err)
	defer rb.Release()

	err = c.PutStates(context.Background(), "test-states", rb)
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, c.Breaker().State())

	mockServer.mu.Lock()
	defer mockServer.mu.Unlock()
	assert.Equal(t, int64(2), mockServer.rows)
	assert.Contains(t, mockServer.datasets, "test-states")
}

func TestFlightClientCircuitOpen(t *testing.T) {
	c, err := NewFlightClient("localhost:1")
	require.NoError(t, err)
	defer c.Close()

	// Trip the breaker directly; send attempts must short-circuit.
	for i := 0; i < breakerMaxFailures; i++ {
		c.breaker.Failure()
	}
	require.Equal(t, StateOpen, c.breaker.State())

	builder := NewStateRecordBuilder(memory.NewGoAllocator(), 1)
	layout, err := sequence.NewLayout([]int{1})
	require.NoError(t, err)
	rb, err := builder.BuildFinalStates(layout, []float64{1}, []float64{2}, false)
	require.NoError(t, err)
	defer rb.Release()

	err = c.PutStates(context.Background(), "test-states", rb)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestFlightClientRecordsFailures(t *testing.T) {
	// Nothing listens here; the send must fail and count against the
	// breaker without opening it.
	c, err := NewFlightClient("localhost:1")
	require.NoError(t, err)
	defer c.Close()

	builder := NewStateRecordBuilder(memory.NewGoAllocator(), 1)
	layout, err := sequence.NewLayout([]int{1})
	require.NoError(t, err)
	rb, err := builder.BuildFinalStates(layout, []float64{1}, []float64{2}, false)
	require.NoError(t, err)
	defer rb.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err = c.PutStates(ctx, "test-states", rb)
	assert.Error(t, err)
	assert.Equal(t, StateClosed, c.Breaker().State())
}
