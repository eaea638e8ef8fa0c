package sshexec

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/mailbox"
	"github.com/farcall-dev/farcall/internal/protocol"
)

// Conn is the per-accepted-transport context, mirroring server.Connection's
// shape so a client sees no difference in framing or response behavior
// between the two executors.
type Conn struct {
	disp *Dispatcher
	tr   *frame.Transport
	form mailbox.WireForm
	log  *slog.Logger

	writeMu sync.Mutex

	replyFn func(originID string, payload protocol.ResponsePayload)
}

// Accept performs the frame handshake and runs the request loop until ctx is
// canceled or the transport errors.
func (d *Dispatcher) Accept(ctx context.Context, rwc frameReadWriteCloser, form mailbox.WireForm, prefs frame.ServerPreferences, backupCap int) error {
	tr := frame.NewTransport(rwc, backupCap)
	if err := tr.HandshakeServer(prefs); err != nil {
		return err
	}
	c := &Conn{disp: d, tr: tr, form: form, log: d.log}
	return c.loop(ctx)
}

// frameReadWriteCloser avoids importing io solely for this alias.
type frameReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func (c *Conn) loop(ctx context.Context) error {
	for {
		raw, err := c.tr.ReadFrame(ctx)
		if err != nil {
			return err
		}
		req, err := c.decodeRequest(raw)
		if err != nil {
			c.log.Warn("sshexec: dropping undecodable request frame", "err", err)
			continue
		}
		go c.dispatch(req)
	}
}

func (c *Conn) decodeRequest(raw []byte) (protocol.Request, error) {
	if c.form == mailbox.WireJSON {
		return protocol.DecodeRequestJSON(raw)
	}
	return protocol.DecodeRequestBinary(raw)
}

func (c *Conn) encodeResponse(resp protocol.Response) ([]byte, error) {
	if c.form == mailbox.WireJSON {
		return protocol.EncodeResponseJSON(resp)
	}
	return protocol.EncodeResponseBinary(resp)
}

func (c *Conn) reply(originID string, payload protocol.ResponsePayload) {
	if c.replyFn != nil {
		c.replyFn(originID, payload)
		return
	}
	resp := protocol.Response{ID: uuid.NewString(), OriginID: originID, Payload: payload}
	data, err := c.encodeResponse(resp)
	if err != nil {
		c.log.Error("sshexec: encode response", "err", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.tr.WriteFrame(data); err != nil {
		c.log.Debug("sshexec: write response failed, connection likely closing", "err", err)
	}
}

func (c *Conn) replyErr(originID string, err error) {
	if e, ok := err.(*protocol.Error); ok {
		c.reply(originID, e)
		return
	}
	e := protocol.ToError(err)
	c.reply(originID, &e)
}

func (c *Conn) dispatch(req protocol.Request) {
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
		c.replyErr(req.ID, unsupported("watch"))
	case *protocol.Unwatch:
		c.replyErr(req.ID, unsupported("unwatch"))
	case *protocol.ProcSpawn:
		c.handleProcSpawn(req.ID, p)
	case *protocol.ProcStdin:
		c.handleProcStdin(req.ID, p)
	case *protocol.ProcKill:
		c.handleProcKill(req.ID, p)
	case *protocol.ProcResizePty:
		c.handleProcResizePty(req.ID, p)
	case *protocol.SearchStart:
		c.replyErr(req.ID, unsupported("search"))
	case *protocol.SearchCancel:
		c.replyErr(req.ID, unsupported("search"))
	case *protocol.SystemInfoReq:
		c.handleSystemInfo(req.ID)
	case *protocol.VersionReq:
		c.handleVersion(req.ID)
	case *protocol.CapabilitiesReq:
		c.reply(req.ID, &protocol.CapabilitiesResp{Kinds: SupportedKinds})
	default:
		c.replyErr(req.ID, errors.New("unsupported request kind"))
	}
}
