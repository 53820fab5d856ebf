package client

import (
	"context"
	"testing"
	"time"

	"github.com/brokersql/cas-go/protocol"
	"github.com/brokersql/cas-go/transport"
	"github.com/brokersql/cas-go/transport/mock"
)

// newBenchSession wires a Session to a mock transport that always answers
// the handshake, so the benchmark measures the client's own encode/decode
// and state-machine overhead rather than a real socket.
func newBenchSession(b *testing.B) *Session {
	b.Helper()
	loginCAS := protocol.CASInfo{0, 0xFF, 0xFF, 0xFE}
	s := NewSession(WithHost("bench.test"))
	s.dialer = func(ctx context.Context, address string, timeout time.Duration) (transport.Transport, error) {
		mt := mock.NewMockTransport()
		if address == "bench.test:33000" {
			mt.WithResponse(rendezvousResponseBench(33001))
		} else {
			mt.WithResponse(frameBench(loginCAS, loginBodyBench(7)))
		}
		return mt, nil
	}
	return s
}

func rendezvousResponseBench(port int32) []byte {
	body := protocol.NewWriter().WriteInt32(0).WriteInt32(port).Body()
	return frameBench(protocol.InitialCASInfo(), body)
}

func loginBodyBench(sessionID int32) []byte {
	w := protocol.NewWriter()
	w.WriteInt32(0)
	w.WriteBytes([]byte{5, 0, 5, 0, 5, 0, 0, 0})
	w.WriteInt32(sessionID)
	return w.Body()
}

func frameBench(cas protocol.CASInfo, body []byte) []byte {
	out := make([]byte, protocol.CASInfoSize+len(body))
	copy(out[:protocol.CASInfoSize], cas[:])
	copy(out[protocol.CASInfoSize:], body)
	return out
}

// BenchmarkConnectionEstablishment measures the cost of one full
// rendezvous+login handshake against a mock transport.
func BenchmarkConnectionEstablishment(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		s := newBenchSession(b)
		if err := s.Connect(context.Background()); err != nil {
			b.Fatalf("Connect() error = %v", err)
		}
	}
}

// BenchmarkSimpleQuery measures encode+decode cost for one execute round
// trip against a connected session.
func BenchmarkSimpleQuery(b *testing.B) {
	loginCAS := protocol.CASInfo{0, 0xFF, 0xFF, 0xFE}
	s := NewSession(WithHost("bench.test"))
	mt := mock.NewMockTransport()
	mt.WithResponse(frameBench(loginCAS, loginBodyBench(7)))
	s.dialer = func(ctx context.Context, address string, timeout time.Duration) (transport.Transport, error) {
		if address == "bench.test:33000" {
			return mock.NewMockTransport().WithResponse(rendezvousResponseBench(33001)), nil
		}
		return mt, nil
	}
	if err := s.Connect(context.Background()); err != nil {
		b.Fatalf("Connect() error = %v", err)
	}

	cols := []protocol.ColumnDescriptor{{Name: "id", Type: 1}}
	row := protocol.Row{[]byte("1")}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := protocol.NewWriter()
		w.WriteInt32(0)
		w.WriteInt32(int32(i))
		w.WriteInt32(1)
		w.WriteInt32(int32(len(cols)))
		for _, c := range cols {
			w.WriteCString(c.Name)
			w.WriteByte(c.Type)
		}
		w.WriteInt32(1)
		for _, v := range row {
			w.WriteInt32(int32(len(v)))
			w.WriteBytes(v)
		}
		mt.WithResponse(frameBench(s.cas, w.Body()))

		if _, err := s.ExecuteQuery(context.Background(), "SHOW BUNDLES;"); err != nil {
			b.Fatalf("ExecuteQuery() error = %v", err)
		}
	}
}
