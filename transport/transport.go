// Package transport defines the transport-layer abstraction the client
// core drives: something that can send one framed request and receive one
// framed response over a byte-oriented connection.
package transport

import (
	"context"
	"time"
)

// Transport sends and receives whole frames. Implementations own exactly
// one underlying connection; pooling and load-balancing across multiple
// connections are the caller's concern, not the transport's.
type Transport interface {
	// Send transmits one already-framed request to the server.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until one complete framed response has been read.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection.
	Close() error

	// IsHealthy reports whether the transport still believes its
	// connection is usable.
	IsHealthy() bool

	// GetMetrics returns transport performance metrics.
	GetMetrics() TransportMetrics
}

// TransportMetrics contains performance and health metrics for one
// transport instance.
type TransportMetrics struct {
	TotalRequests      int64
	TotalErrors        int64
	AverageLatency     time.Duration
	LastError          error
	LastErrorTime      time.Time
	BytesSent          int64
	BytesReceived      int64
	HealthChecksPassed int64
	HealthChecksFailed int64
}

// Factory dials a new transport instance.
type Factory func(ctx context.Context) (Transport, error)
