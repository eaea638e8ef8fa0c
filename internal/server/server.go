// Package server implements the request executor of spec §4.4: it owns one
// Connection per accepted frame.Transport, dispatches every request to a
// handler, and maintains the process/watcher/search tables that outlive a
// single request so follow-ups (proc_stdin, unwatch, search_cancel) can find
// their target.
//
// Adaptation note: the original protocol lets one wire request carry a list
// of heterogeneous operations sharing one origin_id. internal/protocol
// models a Request as exactly one operation instead — batching is expressed
// by the caller issuing several Requests, and every response the dispatcher
// writes carries the originating Request's own ID as its origin_id. This keeps internal/protocol's envelope simple without
// losing the "many responses, one origin_id, no ordering guarantee" contract
// Connection.dispatch relies on.
package server

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/mailbox"
	"github.com/farcall-dev/farcall/internal/protocol"
)

// ConnID is the random 64-bit handle assigned to an accepted connection
// (§4.4.1 "allocate random connection_id").
type ConnID uint64

func newConnID() ConnID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform's entropy source is broken;
		// nothing downstream can recover either, so panic rather than hand
		// out a zero id that could collide.
		panic("server: crypto/rand unavailable: " + err.Error())
	}
	return ConnID(binary.BigEndian.Uint64(b[:]))
}

// Executor is the set of capability kinds a Dispatcher advertises and
// implements. The native executor supports everything; internal/sshexec
// reports a reduced set (§4.4.6, SPEC_FULL.md §4 supplemental feature #5).
type Executor struct {
	Kinds []string
}

// Dispatcher is the server-wide state shared by every connection: the
// process/watcher/search tables, grounded on the PTYRoutes mutex+map
// registry (_examples/ehrlich-b-wingthing/internal/relay/pty_relay.go).
type Dispatcher struct {
	log *slog.Logger

	procs    *ProcessTable
	watchers *WatcherRegistry
	searches *SearchRegistry

	mu    sync.RWMutex
	conns map[ConnID]*Connection
}

// NewDispatcher constructs a Dispatcher with its own process table, watcher
// registry and search registry. logger may be nil (defaults to slog.Default()).
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		log:   logger,
		conns: make(map[ConnID]*Connection),
	}
	d.procs = newProcessTable(logger)
	d.watchers = newWatcherRegistry(logger)
	d.searches = newSearchRegistry(logger)
	return d
}

// Connection is the per-accepted-transport context of §4.4.1. It owns a
// read/dispatch/write loop; filesystem, process, watcher and search
// operations it starts are attached to this connection's id in the
// Dispatcher's global tables so a disconnect can find and clean them up.
type Connection struct {
	ID   ConnID
	disp *Dispatcher
	tr   *frame.Transport
	form mailbox.WireForm
	log  *slog.Logger

	writeMu sync.Mutex

	// replyFn overrides reply's transport write when set, so tests can
	// exercise handlers directly without a real frame.Transport.
	replyFn func(originID string, payload protocol.ResponsePayload)
}

// Accept performs the frame handshake as the server side, allocates a
// connection id, and runs the request/response loop until ctx is canceled
// or the transport errors. It always runs connection cleanup exactly once
// before returning (§4.4.6).
func (d *Dispatcher) Accept(ctx context.Context, conn io.ReadWriteCloser, form mailbox.WireForm, prefs frame.ServerPreferences, backupCap int) error {
	tr := frame.NewTransport(conn, backupCap)
	if err := tr.HandshakeServer(prefs); err != nil {
		return err
	}
	id := newConnID()
	c := &Connection{
		ID:   id,
		disp: d,
		tr:   tr,
		form: form,
		log:  d.log.With("conn_id", id),
	}

	d.mu.Lock()
	d.conns[c.ID] = c
	d.mu.Unlock()

	defer d.cleanupConnection(c)

	return c.loop(ctx)
}

// cleanupConnection runs the disconnect cleanup of §4.4.3/§4.4.4 exactly
// once: kill+remove every non-persisted process owned by this connection,
// remove every watcher registration, cancel every search.
func (d *Dispatcher) cleanupConnection(c *Connection) {
	d.mu.Lock()
	delete(d.conns, c.ID)
	d.mu.Unlock()

	d.procs.removeConnection(c.ID)
	d.watchers.removeConnection(c.ID)
	d.searches.removeConnection(c.ID)
}

func (c *Connection) loop(ctx context.Context) error {
	for {
		raw, err := c.tr.ReadFrame(ctx)
		if err != nil {
			return err
		}
		req, err := c.decodeRequest(raw)
		if err != nil {
			c.log.Warn("server: dropping undecodable request frame", "err", err)
			continue
		}
		go c.dispatch(ctx, req)
	}
}

func (c *Connection) decodeRequest(raw []byte) (protocol.Request, error) {
	if c.form == mailbox.WireJSON {
		return protocol.DecodeRequestJSON(raw)
	}
	return protocol.DecodeRequestBinary(raw)
}

func (c *Connection) encodeResponse(resp protocol.Response) ([]byte, error) {
	if c.form == mailbox.WireJSON {
		return protocol.EncodeResponseJSON(resp)
	}
	return protocol.EncodeResponseBinary(resp)
}

// reply writes a single Response tagged with originID. Safe for concurrent
// callers (one per in-flight request's background tasks).
func (c *Connection) reply(originID string, payload protocol.ResponsePayload) {
	if c.replyFn != nil {
		c.replyFn(originID, payload)
		return
	}
	resp := protocol.Response{ID: uuid.NewString(), OriginID: originID, Payload: payload}
	data, err := c.encodeResponse(resp)
	if err != nil {
		c.log.Error("server: encode response", "err", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.tr.WriteFrame(data); err != nil {
		c.log.Debug("server: write response failed, connection likely closing", "err", err)
	}
}

func (c *Connection) replyErr(originID string, err error) {
	c.reply(originID, errPayload(err))
}

// errPayload converts any Go error into the wire Error response payload. A
// handler that already constructed a protocol.Error (to pick a specific
// ErrorKind the generic ClassifyErr wouldn't infer) passes it through
// unchanged instead of being reclassified.
func errPayload(err error) *protocol.Error {
	if e, ok := err.(*protocol.Error); ok {
		return e
	}
	e := protocol.ToError(err)
	return &e
}

// dispatch spawns the handler for one request payload element (see the
// package doc's batching note) and writes its response(s) back tagged with
// req.ID. Each handler may write zero, one, or many responses over the
// request's lifetime (process output, search results, watch events).
func (c *Connection) dispatch(ctx context.Context, req protocol.Request) {
	switch p := req.Payload.(type) {
	case *protocol.FileRead:
		c.handleFileRead(req.ID, p)
	case *protocol.FileReadText:
		c.handleFileReadText(req.ID, p)
	case *protocol.FileWrite:
		c.handleFileWrite(req.ID, p)
	case *protocol.FileAppend:
		c.handleFileAppend(req.ID, p)
	case *protocol.DirRead:
		c.handleDirRead(req.ID, p)
	case *protocol.DirCreate:
		c.handleDirCreate(req.ID, p)
	case *protocol.Remove:
		c.handleRemove(req.ID, p)
	case *protocol.Copy:
		c.handleCopy(req.ID, p)
	case *protocol.Rename:
		c.handleRename(req.ID, p)
	case *protocol.Exists:
		c.handleExists(req.ID, p)
	case *protocol.MetadataReq:
		c.handleMetadata(req.ID, p)
	case *protocol.SetPermissions:
		c.handleSetPermissions(req.ID, p)
	case *protocol.Watch:
		c.handleWatch(req.ID, p)
	case *protocol.Unwatch:
		c.handleUnwatch(req.ID, p)
	case *protocol.ProcSpawn:
		c.handleProcSpawn(ctx, req.ID, p)
	case *protocol.ProcStdin:
		c.handleProcStdin(req.ID, p)
	case *protocol.ProcKill:
		c.handleProcKill(req.ID, p)
	case *protocol.ProcResizePty:
		c.handleProcResizePty(req.ID, p)
	case *protocol.SearchStart:
		c.handleSearchStart(ctx, req.ID, p)
	case *protocol.SearchCancel:
		c.handleSearchCancel(req.ID, p)
	case *protocol.SystemInfoReq:
		c.handleSystemInfo(req.ID)
	case *protocol.VersionReq:
		c.handleVersion(req.ID)
	case *protocol.CapabilitiesReq:
		c.handleCapabilities(req.ID)
	default:
		c.replyErr(req.ID, errors.New("unsupported request kind"))
	}
}

