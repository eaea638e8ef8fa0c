package frame

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestTransportWriteReadRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ta := NewTransport(a, 16)
	tb := NewTransport(b, 16)

	go func() {
		if err := ta.WriteFrame([]byte("hello")); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := tb.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestTransportTryReadFrameWouldBlock(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	tb := NewTransport(b, 16)
	_, err := tb.TryReadFrame()
	if err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}

func TestTransportCountsIncrement(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ta := NewTransport(a, 16)
	tb := NewTransport(b, 16)

	go ta.WriteFrame([]byte("one"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tb.ReadFrame(ctx); err != nil {
		t.Fatalf("read: %v", err)
	}

	sent, _ := ta.Counts()
	if sent != 1 {
		t.Errorf("sender sentCnt = %d, want 1", sent)
	}
	_, received := tb.Counts()
	if received != 1 {
		t.Errorf("receiver receivedCnt = %d, want 1", received)
	}
}

func TestTransportWithCompressionCodec(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ta := NewTransport(a, 16)
	tb := NewTransport(b, 16)
	codec := CompressionCodec{Algo: CompressionGzip, Level: 6}
	ta.SetCodec(codec)
	tb.SetCodec(codec)

	payload := bytes.Repeat([]byte("the quick brown fox "), 50)
	go ta.WriteFrame(payload)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := tb.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round-trip mismatch through compression codec")
	}
}

func TestTransportReadFrameCancellation(t *testing.T) {
	_, b := net.Pipe()
	defer b.Close()
	tb := NewTransport(b, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tb.ReadFrame(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
