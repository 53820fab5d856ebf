// Package mock provides a scriptable fake transport.Transport for tests
// that drive the client core without a real socket.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brokersql/cas-go/transport"
)

// MockTransport implements transport.Transport with a queue of canned
// responses and full call/byte history for assertions.
type MockTransport struct {
	sendErr    error
	receiveErr error
	healthy    bool

	sendCalls    atomic.Int32
	receiveCalls atomic.Int32
	closeCalls   atomic.Int32

	metrics mockMetrics
	mu      sync.Mutex
	closed  bool

	sendDelay time.Duration
	recvDelay time.Duration

	sendHistory [][]byte
	recvHistory [][]byte
	responses   [][]byte
}

type mockMetrics struct {
	totalRequests      atomic.Int64
	totalErrors        atomic.Int64
	bytesSent          atomic.Int64
	bytesReceived      atomic.Int64
	healthChecksPassed atomic.Int64
	healthChecksFailed atomic.Int64
	latencySum         atomic.Int64
}

// NewMockTransport returns a healthy mock transport with no queued
// responses.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		healthy:     true,
		sendHistory: make([][]byte, 0),
		recvHistory: make([][]byte, 0),
	}
}

// WithSendError configures every Send call to fail with err.
func (m *MockTransport) WithSendError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// WithReceiveError configures every Receive call to fail with err.
func (m *MockTransport) WithReceiveError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveErr = err
	return m
}

// WithResponse enqueues one frame to be returned by a future Receive call.
// Successive calls append to the queue, so a test can script an entire
// exchange (rendezvous, login, execute, fetch...) up front.
func (m *MockTransport) WithResponse(data []byte) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, data)
	return m
}

// WithHealthy sets the health status IsHealthy reports.
func (m *MockTransport) WithHealthy(healthy bool) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

// WithSendDelay adds an artificial delay before Send returns.
func (m *MockTransport) WithSendDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendDelay = delay
	return m
}

// WithReceiveDelay adds an artificial delay before Receive returns.
func (m *MockTransport) WithReceiveDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvDelay = delay
	return m
}

// Send implements transport.Transport.
func (m *MockTransport) Send(ctx context.Context, data []byte) error {
	m.sendCalls.Add(1)
	m.metrics.totalRequests.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mock transport: closed")
	}
	delay := m.sendDelay
	sendErr := m.sendErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if sendErr != nil {
		m.metrics.totalErrors.Add(1)
		return sendErr
	}

	m.mu.Lock()
	m.sendHistory = append(m.sendHistory, data)
	m.mu.Unlock()

	m.metrics.bytesSent.Add(int64(len(data)))
	return nil
}

// Receive implements transport.Transport, popping the next queued
// response.
func (m *MockTransport) Receive(ctx context.Context) ([]byte, error) {
	m.receiveCalls.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock transport: closed")
	}
	delay := m.recvDelay
	receiveErr := m.receiveErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if receiveErr != nil {
		m.metrics.totalErrors.Add(1)
		return nil, receiveErr
	}

	m.mu.Lock()
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock transport: no response queued")
	}
	data := m.responses[0]
	m.responses = m.responses[1:]
	m.recvHistory = append(m.recvHistory, data)
	m.mu.Unlock()

	m.metrics.bytesReceived.Add(int64(len(data)))
	return data, nil
}

// Close implements transport.Transport.
func (m *MockTransport) Close() error {
	m.closeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsHealthy implements transport.Transport.
func (m *MockTransport) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.healthy {
		m.metrics.healthChecksPassed.Add(1)
	} else {
		m.metrics.healthChecksFailed.Add(1)
	}
	return m.healthy
}

// GetMetrics implements transport.Transport.
func (m *MockTransport) GetMetrics() transport.TransportMetrics {
	totalReqs := m.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(m.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:      totalReqs,
		TotalErrors:        m.metrics.totalErrors.Load(),
		AverageLatency:     avgLatency,
		BytesSent:          m.metrics.bytesSent.Load(),
		BytesReceived:      m.metrics.bytesReceived.Load(),
		HealthChecksPassed: m.metrics.healthChecksPassed.Load(),
		HealthChecksFailed: m.metrics.healthChecksFailed.Load(),
	}
}

// GetSendCallCount returns the number of times Send was called.
func (m *MockTransport) GetSendCallCount() int { return int(m.sendCalls.Load()) }

// GetReceiveCallCount returns the number of times Receive was called.
func (m *MockTransport) GetReceiveCallCount() int { return int(m.receiveCalls.Load()) }

// GetCloseCallCount returns the number of times Close was called.
func (m *MockTransport) GetCloseCallCount() int { return int(m.closeCalls.Load()) }

// GetSendHistory returns every frame passed to Send, in order.
func (m *MockTransport) GetSendHistory() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([][]byte, len(m.sendHistory))
	copy(history, m.sendHistory)
	return history
}

// GetReceiveHistory returns every frame returned by Receive, in order.
func (m *MockTransport) GetReceiveHistory() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([][]byte, len(m.recvHistory))
	copy(history, m.recvHistory)
	return history
}

// IsClosed reports whether Close has been called.
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
