package mailbox

import (
	"context"
	"fmt"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// CallTyped is a thin generic wrapper over Channel.Call for the common case
// of a request that expects exactly one response of a known payload type —
// most filesystem operations. It returns a wrapped error if the server
// replied with an Error payload instead of P.
func CallTyped[P protocol.ResponsePayload](ctx context.Context, c *Channel, req protocol.Request) (P, error) {
	var zero P
	resp, err := c.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	if errPayload, ok := resp.Payload.(*protocol.Error); ok {
		return zero, fmt.Errorf("mailbox: request %s failed: %w", req.ID, errPayload)
	}
	payload, ok := resp.Payload.(P)
	if !ok {
		return zero, fmt.Errorf("mailbox: request %s got unexpected response payload %T", req.ID, resp.Payload)
	}
	return payload, nil
}

// StreamTyped sends req and returns a channel of successfully-typed
// responses for streaming operations (process output, search matches,
// watcher events) where multiple responses share one origin_id. The
// returned stop function closes the underlying mailbox.
func StreamTyped[P protocol.ResponsePayload](c *Channel, req protocol.Request) (<-chan P, func(), error) {
	mb, err := c.Send(req)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan P)
	go func() {
		defer close(out)
		for resp := range mb.Recv() {
			payload, ok := resp.Payload.(P)
			if !ok {
				c.log.Error("mailbox: skipping response with unexpected payload type", "origin_id", resp.OriginID, "type", fmt.Sprintf("%T", resp.Payload))
				continue
			}
			out <- payload
		}
	}()
	return out, mb.Close, nil
}
