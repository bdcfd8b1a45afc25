package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

var (
	_ Transport = (*MockTransport)(nil)
	_ Transport = (*UDPv4Transport)(nil)
	_ Transport = (*UDPv6Transport)(nil)
)

func TestMockTransportRecordsSends(t *testing.T) {
	mt := NewMockTransport(1)
	defer mt.Close()

	if err := mt.Send(context.Background(), []byte{1, 2, 3}, nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sends := mt.Sends()
	if len(sends) != 1 {
		t.Fatalf("expected 1 recorded send, got %d", len(sends))
	}
	if string(sends[0].Packet) != "\x01\x02\x03" {
		t.Fatalf("unexpected recorded packet: %v", sends[0].Packet)
	}
}

func TestMockTransportReceiveReturnsEnqueuedPacket(t *testing.T) {
	mt := NewMockTransport(1)
	defer mt.Close()

	want := Packet{Data: []byte("hello"), InterfaceIndex: 4}
	mt.Enqueue(want)

	got, err := mt.Receive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Data) != "hello" || got.InterfaceIndex != 4 {
		t.Fatalf("unexpected packet: %+v", got)
	}
}

func TestMockTransportReceiveRespectsContextCancellation(t *testing.T) {
	mt := NewMockTransport(1)
	defer mt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mt.Receive(ctx)
	if err == nil {
		t.Fatal("expected context deadline error, got nil")
	}
}

func TestMockTransportSendErrorInjection(t *testing.T) {
	mt := NewMockTransport(1)
	defer mt.Close()

	injected := net.ErrClosed
	mt.SetSendError(injected)
	if err := mt.Send(context.Background(), []byte("x"), nil, 0); err != injected {
		t.Fatalf("expected injected error, got %v", err)
	}
}
