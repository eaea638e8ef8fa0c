package mailbox

import (
	"testing"

	"github.com/farcall-dev/farcall/internal/protocol"
)

func TestPostOfficeDeliverRoutesToRegisteredMailbox(t *testing.T) {
	po := NewPostOffice(4)
	mb := po.Register("req-1")
	defer mb.Close()

	ok := po.Deliver(protocol.Response{ID: "resp-1", OriginID: "req-1", Payload: &protocol.Ok{}})
	if !ok {
		t.Fatal("expected delivery to succeed")
	}
	select {
	case resp := <-mb.Recv():
		if resp.ID != "resp-1" {
			t.Errorf("got response id %q, want resp-1", resp.ID)
		}
	default:
		t.Fatal("expected buffered response to be immediately available")
	}
}

func TestPostOfficeDeliverUnknownOriginReturnsFalse(t *testing.T) {
	po := NewPostOffice(4)
	ok := po.Deliver(protocol.Response{ID: "x", OriginID: "nobody-waiting", Payload: &protocol.Ok{}})
	if ok {
		t.Fatal("expected delivery to an unregistered id to fail")
	}
}

func TestMailboxCloseIsIdempotentAndUnregisters(t *testing.T) {
	po := NewPostOffice(4)
	mb := po.Register("req-2")
	mb.Close()
	mb.Close() // must not panic on double close

	if po.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding mailboxes after close, got %d", po.Outstanding())
	}
	if po.Deliver(protocol.Response{OriginID: "req-2"}) {
		t.Error("expected delivery after close to fail")
	}
}

func TestPostOfficeCloseClosesAllMailboxes(t *testing.T) {
	po := NewPostOffice(4)
	mb1 := po.Register("a")
	mb2 := po.Register("b")
	po.Close()

	if _, ok := <-mb1.Recv(); ok {
		t.Error("expected mb1 channel closed")
	}
	if _, ok := <-mb2.Recv(); ok {
		t.Error("expected mb2 channel closed")
	}
}
