// Package tcp implements the transport.Transport interface over a plain
// TCP socket, one connection per session (TLS and connection pooling
// across sessions are not part of this transport's scope).
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brokersql/cas-go/protocol"
	"github.com/brokersql/cas-go/transport"
)

// Options configures the TCP transport.
type Options struct {
	// Address is the server address (host:port) to dial.
	Address string

	// Timeout bounds the dial and each read/write.
	Timeout time.Duration
}

// TCPTransport implements transport.Transport over a single dialed TCP
// connection, reassembling responses with a protocol.Accumulator so reads
// are independent of how the kernel happens to chunk the stream.
type TCPTransport struct {
	opts    Options
	conn    net.Conn
	acc     *protocol.Accumulator
	metrics transportMetrics
	mu      sync.Mutex
	alive   atomic.Bool
}

type transportMetrics struct {
	totalRequests      atomic.Int64
	totalErrors        atomic.Int64
	bytesSent          atomic.Int64
	bytesReceived      atomic.Int64
	healthChecksPassed atomic.Int64
	healthChecksFailed atomic.Int64
	latencySum         atomic.Int64
	lastError          error
	lastErrorTime      time.Time
	mu                 sync.RWMutex
}

// Dial opens a new TCP transport to opts.Address.
func Dial(ctx context.Context, opts Options) (transport.Transport, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("tcp transport: address is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("tcp transport: dial %s: %w", opts.Address, err)
	}

	t := &TCPTransport{
		opts: opts,
		conn: conn,
		acc:  protocol.NewAccumulator(),
	}
	t.alive.Store(true)
	return t, nil
}

// Send implements transport.Transport.
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	start := time.Now()
	t.metrics.totalRequests.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			t.recordError(err)
			return err
		}
	} else if t.opts.Timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.opts.Timeout))
	}

	if _, err := t.conn.Write(data); err != nil {
		t.alive.Store(false)
		t.recordError(err)
		return fmt.Errorf("tcp transport: write: %w", err)
	}

	t.metrics.bytesSent.Add(int64(len(data)))
	t.recordLatency(time.Since(start))
	return nil
}

// Receive implements transport.Transport, blocking until one full frame
// (length prefix + CAS info + body) has been read off the socket.
func (t *TCPTransport) Receive(ctx context.Context) ([]byte, error) {
	start := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.acc.Ready() {
		if deadline, ok := ctx.Deadline(); ok {
			if err := t.conn.SetReadDeadline(deadline); err != nil {
				t.recordError(err)
				return nil, err
			}
		} else if t.opts.Timeout > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.opts.Timeout))
		}

		buf := make([]byte, 4096)
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.acc.Feed(buf[:n])
			t.metrics.bytesReceived.Add(int64(n))
		}
		if err != nil {
			t.alive.Store(false)
			t.recordError(err)
			return nil, fmt.Errorf("tcp transport: read: %w", err)
		}
	}

	cas, body, ok := t.acc.TakeFrame()
	if !ok {
		return nil, fmt.Errorf("tcp transport: accumulator reported ready but yielded no frame")
	}
	t.recordLatency(time.Since(start))

	out := make([]byte, protocol.CASInfoSize+len(body))
	copy(out[:protocol.CASInfoSize], cas[:])
	copy(out[protocol.CASInfoSize:], body)
	return out, nil
}

// Close implements transport.Transport.
func (t *TCPTransport) Close() error {
	t.alive.Store(false)
	return t.conn.Close()
}

// IsHealthy implements transport.Transport.
func (t *TCPTransport) IsHealthy() bool {
	healthy := t.alive.Load()
	if healthy {
		t.metrics.healthChecksPassed.Add(1)
	} else {
		t.metrics.healthChecksFailed.Add(1)
	}
	return healthy
}

// GetMetrics implements transport.Transport.
func (t *TCPTransport) GetMetrics() transport.TransportMetrics {
	t.metrics.mu.RLock()
	lastErr := t.metrics.lastError
	lastErrTime := t.metrics.lastErrorTime
	t.metrics.mu.RUnlock()

	totalReqs := t.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(t.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:      totalReqs,
		TotalErrors:        t.metrics.totalErrors.Load(),
		AverageLatency:     avgLatency,
		LastError:          lastErr,
		LastErrorTime:      lastErrTime,
		BytesSent:          t.metrics.bytesSent.Load(),
		BytesReceived:      t.metrics.bytesReceived.Load(),
		HealthChecksPassed: t.metrics.healthChecksPassed.Load(),
		HealthChecksFailed: t.metrics.healthChecksFailed.Load(),
	}
}

func (t *TCPTransport) recordError(err error) {
	t.metrics.totalErrors.Add(1)
	t.metrics.mu.Lock()
	t.metrics.lastError = err
	t.metrics.lastErrorTime = time.Now()
	t.metrics.mu.Unlock()
}

func (t *TCPTransport) recordLatency(latency time.Duration) {
	t.metrics.latencySum.Add(int64(latency))
}
