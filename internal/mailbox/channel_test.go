package mailbox

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/protocol"
)

// fakeServer reads one request off transport and writes back responses.
func fakeServer(t *testing.T, tr *frame.Transport, respond func(req protocol.Request, write func(protocol.Response))) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := tr.ReadFrame(ctx)
	if err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	req, err := protocol.DecodeRequestBinary(raw)
	if err != nil {
		t.Errorf("server decode: %v", err)
		return
	}
	respond(req, func(resp protocol.Response) {
		data, err := protocol.EncodeResponseBinary(resp)
		if err != nil {
			t.Errorf("server encode response: %v", err)
			return
		}
		if err := tr.WriteFrame(data); err != nil {
			t.Errorf("server write: %v", err)
		}
	})
}

func TestChannelCallRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	clientTr := frame.NewTransport(a, 16)
	serverTr := frame.NewTransport(b, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch := NewChannel(ctx, clientTr, WireBinary, NewPostOffice(8), nil)

	go fakeServer(t, serverTr, func(req protocol.Request, write func(protocol.Response)) {
		write(protocol.Response{ID: "r1", OriginID: req.ID, Payload: &protocol.ExistsResp{Value: true}})
	})

	resp, err := ch.Call(ctx, protocol.Request{ID: "req-1", Payload: &protocol.Exists{Path: "/tmp/x"}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	exists, ok := resp.Payload.(*protocol.ExistsResp)
	if !ok || !exists.Value {
		t.Fatalf("unexpected payload %+v", resp.Payload)
	}
}

func TestCallTypedReturnsErrorOnErrorPayload(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	clientTr := frame.NewTransport(a, 16)
	serverTr := frame.NewTransport(b, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch := NewChannel(ctx, clientTr, WireBinary, NewPostOffice(8), nil)

	go fakeServer(t, serverTr, func(req protocol.Request, write func(protocol.Response)) {
		write(protocol.Response{ID: "r1", OriginID: req.ID, Payload: &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such file"}})
	})

	_, err := CallTyped[*protocol.ExistsResp](ctx, ch, protocol.Request{ID: "req-2", Payload: &protocol.Exists{Path: "/missing"}})
	if err == nil {
		t.Fatal("expected error from Error payload")
	}
}

func TestStreamTypedDeliversMultipleResponses(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	clientTr := frame.NewTransport(a, 16)
	serverTr := frame.NewTransport(b, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch := NewChannel(ctx, clientTr, WireBinary, NewPostOffice(8), nil)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer rcancel()
		raw, err := serverTr.ReadFrame(rctx)
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		req, err := protocol.DecodeRequestBinary(raw)
		if err != nil {
			t.Errorf("server decode: %v", err)
			return
		}
		for i := 0; i < 3; i++ {
			data, _ := protocol.EncodeResponseBinary(protocol.Response{
				ID: "out", OriginID: req.ID,
				Payload: &protocol.ProcStdout{ID: "proc-1", Data: []byte{byte('a' + i)}},
			})
			serverTr.WriteFrame(data)
		}
	}()

	stream, stop, err := StreamTyped[*protocol.ProcStdout](ch, protocol.Request{
		ID:      "spawn-1",
		Payload: &protocol.ProcSpawn{Cmd: "echo"},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stop()

	for i := 0; i < 3; i++ {
		select {
		case msg := <-stream:
			if len(msg.Data) != 1 || msg.Data[0] != byte('a'+i) {
				t.Errorf("unexpected stdout chunk %+v", msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for stdout chunk %d", i)
		}
	}
	<-serverDone
}
