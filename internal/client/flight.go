package client

import (
	"context"
	"errors"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Breaker defaults: trip after five consecutive failed puts, probe again
// after thirty seconds.
const (
	breakerMaxFailures = 5
	breakerTimeout     = 30 * time.Second
)

// ErrCircuitOpen is returned when the breaker is open and the record was
// dropped without a send attempt.
var ErrCircuitOpen = errors.New("client: circuit open, record dropped")

// FlightClient pushes state records to a Longbow server via Apache
// Flight. Sends go through a circuit breaker so a dead peer sheds load
// instead of stalling the serving path.
type FlightClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
}

// NewFlightClient creates a new Flight client connected to the given address.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	return &FlightClient{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: NewCircuitBreaker(breakerMaxFailures, breakerTimeout),
	}, nil
}

// PutStates sends a record batch to the given dataset on the Longbow
// server, recording the outcome with the breaker.
func (c *FlightClient) PutStates(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := c.doPut(ctx, datasetName, record); err != nil {
		c.breaker.Failure()
		return err
	}
	c.breaker.Success()
	return nil
}

func (c *FlightClient) doPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	desc := &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{datasetName},
	}

	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(desc)

	if err := writer.Write(record); err != nil {
		return err
	}
	return writer.Close()
}

// Breaker exposes the circuit breaker for health reporting.
func (c *FlightClient) Breaker() *CircuitBreaker { return c.breaker }

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}
