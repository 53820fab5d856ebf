package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/brokersql/cas-go/protocol"
)

func TestDialRequiresAddress(t *testing.T) {
	_, err := Dial(context.Background(), Options{})
	if err == nil {
		t.Fatal("Dial() with empty address succeeded, want error")
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 9)
		if _, err := conn.Read(buf); err != nil {
			return
		}

		resp := protocol.NewWriter().WriteInt32(0).Body()
		frame := protocol.NewWriter().WriteBytes(resp).Frame(protocol.InitialCASInfo())
		conn.Write(frame)
	}()

	tr, err := Dial(context.Background(), Options{Address: ln.Addr().String(), Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer tr.Close()

	req := protocol.NewWriter().WriteByte(byte(protocol.FuncCloseDatabase)).Frame(protocol.InitialCASInfo())
	if err := tr.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	raw, err := tr.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(raw) < protocol.CASInfoSize {
		t.Fatalf("Receive() returned %d bytes, want at least %d", len(raw), protocol.CASInfoSize)
	}

	<-serverDone

	metrics := tr.GetMetrics()
	if metrics.TotalRequests != 1 {
		t.Fatalf("TotalRequests = %d, want 1", metrics.TotalRequests)
	}
	if !tr.IsHealthy() {
		t.Fatal("IsHealthy() = false after a clean round trip")
	}
}

func TestReceiveReportsErrorOnConnClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	tr, err := Dial(context.Background(), Options{Address: ln.Addr().String(), Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer tr.Close()

	if _, err := tr.Receive(context.Background()); err == nil {
		t.Fatal("Receive() after peer close succeeded, want error")
	}
	if tr.IsHealthy() {
		t.Fatal("IsHealthy() = true after a read failure")
	}
}
