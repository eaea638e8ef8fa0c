package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/protocol"
)

// WireForm selects which of the two canonical encodings (spec §4.3) a
// Channel speaks on its transport.
type WireForm int

const (
	WireBinary WireForm = iota
	WireJSON
)

// Channel pairs a frame.Transport with a PostOffice: it owns the
// connection's single read loop, decodes every incoming frame into a
// Response, and delivers it to whichever Mailbox is waiting. Request bodies
// are written directly by the caller's goroutine — writes do not need to go
// through the read loop.
type Channel struct {
	transport *frame.Transport
	post      *PostOffice
	form      WireForm
	log       *slog.Logger

	unsolicited chan protocol.Response
}

// NewChannel starts a Channel's background read loop over transport. The
// loop runs until ctx is canceled or the transport errors.
func NewChannel(ctx context.Context, transport *frame.Transport, form WireForm, post *PostOffice, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		transport:   transport,
		post:        post,
		form:        form,
		log:         logger,
		unsolicited: make(chan protocol.Response, 16),
	}
	go c.readLoop(ctx)
	return c
}

func (c *Channel) readLoop(ctx context.Context) {
	for {
		raw, err := c.transport.ReadFrame(ctx)
		if err != nil {
			c.log.Debug("mailbox: channel read loop stopped", "err", err)
			close(c.unsolicited)
			return
		}
		resp, err := c.decodeResponse(raw)
		if err != nil {
			c.log.Error("mailbox: dropping undecodable frame", "err", err)
			continue
		}
		if !c.post.Deliver(resp) {
			select {
			case c.unsolicited <- resp:
			default:
				c.log.Error("mailbox: dropped unsolicited response, no listener", "origin_id", resp.OriginID)
			}
		}
	}
}

func (c *Channel) decodeResponse(raw []byte) (protocol.Response, error) {
	if c.form == WireJSON {
		return protocol.DecodeResponseJSON(raw)
	}
	return protocol.DecodeResponseBinary(raw)
}

func (c *Channel) encodeRequest(req protocol.Request) ([]byte, error) {
	if c.form == WireJSON {
		return protocol.EncodeRequestJSON(req)
	}
	return protocol.EncodeRequestBinary(req)
}

// Unsolicited returns responses whose origin_id matched no registered
// mailbox — a server-pushed Response (e.g. a watcher Changed event) sent
// without the client having kept a mailbox open for it.
func (c *Channel) Unsolicited() <-chan protocol.Response { return c.unsolicited }

// Send writes req and returns a Mailbox registered to receive every
// Response tagged with req.ID. The caller must Close the mailbox once it no
// longer expects further deliveries (spec §4.2.4).
func (c *Channel) Send(req protocol.Request) (*Mailbox, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	mb := c.post.Register(req.ID)
	data, err := c.encodeRequest(req)
	if err != nil {
		mb.Close()
		return nil, fmt.Errorf("mailbox: encode request: %w", err)
	}
	if err := c.transport.WriteFrame(data); err != nil {
		mb.Close()
		return nil, fmt.Errorf("mailbox: write request: %w", err)
	}
	return mb, nil
}

// Call sends req and waits for exactly one response, then closes the
// mailbox. Use Send directly for streaming responses (process output,
// search matches, filesystem change events).
func (c *Channel) Call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	mb, err := c.Send(req)
	if err != nil {
		return protocol.Response{}, err
	}
	defer mb.Close()
	select {
	case resp, ok := <-mb.Recv():
		if !ok {
			return protocol.Response{}, fmt.Errorf("mailbox: channel closed before response for %s arrived", req.ID)
		}
		return resp, nil
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

