// Package mailbox implements the post office / mailbox abstraction of spec
// §4.2: a single framed connection carries many concurrent request/response
// conversations, each demultiplexed by the response's origin_id back to the
// mailbox that is waiting on it.
package mailbox

import (
	"sync"
	"time"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// Mailbox is a single conversation's inbox. A request sender receives one
// from PostOffice.Register and reads every response tagged with that
// request's id from it until it calls Close.
//
// A Mailbox dropped without Close stays registered until a delivery to it
// blocks for 5 seconds on a full buffer; Deliver then closes and
// unregisters it. There is no background sweep, so a dropped mailbox that
// receives no further responses stays registered.
type Mailbox struct {
	id   string
	ch   chan protocol.Response
	once sync.Once
	po   *PostOffice
}

// ID is the originating request id this mailbox answers deliveries for.
func (m *Mailbox) ID() string { return m.id }

// Recv returns the channel of responses tagged with this mailbox's id.
// The channel is closed when Close is called or the post office is closed.
func (m *Mailbox) Recv() <-chan protocol.Response { return m.ch }

// Close unregisters the mailbox from its post office and closes its
// channel. Safe to call multiple times or concurrently with delivery.
func (m *Mailbox) Close() {
	m.once.Do(func() {
		m.po.unregister(m.id)
		close(m.ch)
	})
}

// PostOffice demultiplexes responses arriving on a connection to whichever
// Mailbox is registered for their OriginID, closing a mailbox whose
// consumer stops reading (see Deliver).
type PostOffice struct {
	mu       sync.Mutex
	boxes    map[string]*Mailbox
	capacity int
	closed   bool
}

// NewPostOffice creates a post office whose per-mailbox channel buffers up
// to capacity responses before Deliver starts blocking.
func NewPostOffice(capacity int) *PostOffice {
	if capacity < 1 {
		capacity = 1
	}
	return &PostOffice{boxes: make(map[string]*Mailbox), capacity: capacity}
}

// Register creates and tracks a new Mailbox for requestID. It is an error
// for the caller to Register the same id twice concurrently; the second
// registration replaces the first, which is the correct behavior for a
// request id reused only after its prior response has arrived.
func (p *PostOffice) Register(requestID string) *Mailbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	mb := &Mailbox{id: requestID, ch: make(chan protocol.Response, p.capacity), po: p}
	p.boxes[requestID] = mb
	return mb
}

func (p *PostOffice) unregister(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.boxes, requestID)
}

// Deliver routes resp to the mailbox registered for resp.OriginID. It
// reports false if no mailbox is (or is still) registered for that id —
// a late or duplicate response the caller already stopped listening for.
func (p *PostOffice) Deliver(resp protocol.Response) bool {
	p.mu.Lock()
	mb, ok := p.boxes[resp.OriginID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case mb.ch <- resp:
		return true
	case <-time.After(5 * time.Second):
		// Consumer stopped reading without closing — drop it rather than
		// block the whole connection's delivery loop indefinitely.
		mb.Close()
		return false
	}
}

// Outstanding reports how many mailboxes are currently registered.
func (p *PostOffice) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.boxes)
}

// Close closes every remaining mailbox. Further Register calls still work
// (a post office can be reused across a Synchronize reconnect) but any
// response delivered for an id registered before Close was never claimed.
func (p *PostOffice) Close() {
	p.mu.Lock()
	boxes := p.boxes
	p.boxes = make(map[string]*Mailbox)
	p.closed = true
	p.mu.Unlock()
	for _, mb := range boxes {
		mb.once.Do(func() { close(mb.ch) })
	}
}
