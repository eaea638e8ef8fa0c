package frame

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrWouldBlock is returned by TryReadFrame when no complete frame is
// currently buffered and the transport must not block waiting for one
// (spec §4.1.6, the try_read_frame contract).
var ErrWouldBlock = errors.New("frame: would block")

// ErrFrozen is returned by writes attempted on a transport that has
// detected a dead peer and is waiting to be handed a fresh connection via
// Synchronize (spec §4.1.5).
var ErrFrozen = errors.New("frame: transport frozen, awaiting synchronize")

// Transport multiplexes a single framed connection through a negotiable
// Codec, and keeps the bookkeeping spec §4.1.3/4.1.5 needs to recover from a
// dropped connection: counters of frames sent/received and a bounded backup
// log of pre-encode frames available for resend after Synchronize.
type Transport struct {
	connMu sync.Mutex
	conn   io.ReadWriteCloser

	codecMu sync.RWMutex
	codec   Codec

	readMu   sync.Mutex
	inBuf    []byte
	readErr  error
	notify   chan struct{}
	pumpOnce sync.Once

	cntMu       sync.Mutex
	sentCnt     uint64
	receivedCnt uint64
	backup      [][]byte
	backupCap   int
	frozen      bool
}

// NewTransport wraps conn with the identity codec and a backup log capped
// at backupCap pre-encode frames.
func NewTransport(conn io.ReadWriteCloser, backupCap int) *Transport {
	return &Transport{
		conn:      conn,
		codec:     PlainCodec{},
		notify:    make(chan struct{}, 1),
		backupCap: backupCap,
	}
}

// SetCodec installs a new codec for subsequent frames; it does not affect
// frames already queued or decoded.
func (t *Transport) SetCodec(c Codec) {
	t.codecMu.Lock()
	t.codec = c
	t.codecMu.Unlock()
}

func (t *Transport) currentCodec() Codec {
	t.codecMu.RLock()
	defer t.codecMu.RUnlock()
	return t.codec
}

func (t *Transport) startPump() {
	t.pumpOnce.Do(func() {
		go t.pump()
	})
}

// resetPump discards the finished pump goroutine's state and arms a fresh
// one for the conn Synchronize just installed.
func (t *Transport) resetPump() {
	t.pumpOnce = sync.Once{}
	t.notify = make(chan struct{}, 1)
	t.startPump()
}

func (t *Transport) pump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.readMu.Lock()
			t.inBuf = append(t.inBuf, buf[:n]...)
			t.readMu.Unlock()
			t.wake()
		}
		if err != nil {
			t.readMu.Lock()
			if t.readErr == nil {
				t.readErr = err
			}
			t.readMu.Unlock()
			t.wake()
			return
		}
	}
}

func (t *Transport) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// TryReadFrame attempts to pop one already-buffered frame and decode it
// without blocking on the underlying connection. It returns ErrWouldBlock
// if no complete frame is currently available.
func (t *Transport) TryReadFrame() ([]byte, error) {
	t.startPump()
	t.readMu.Lock()
	payload, consumed, ok := extractFrame(t.inBuf)
	if ok {
		t.inBuf = t.inBuf[consumed:]
	}
	err := t.readErr
	bufLen := len(t.inBuf)
	t.readMu.Unlock()

	if ok {
		plain, decErr := t.currentCodec().Decode(payload)
		if decErr != nil {
			return nil, fmt.Errorf("frame: decode: %w", decErr)
		}
		t.cntMu.Lock()
		t.receivedCnt++
		t.cntMu.Unlock()
		return plain, nil
	}
	if err != nil {
		if bufLen > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return nil, ErrWouldBlock
}

// ReadFrame blocks until a frame arrives, the connection errors, or ctx is
// canceled.
func (t *Transport) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		plain, err := t.TryReadFrame()
		if err != ErrWouldBlock {
			return plain, err
		}
		select {
		case <-t.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WriteFrame encodes payload with the current codec, appends it to the
// backup log, and flushes it to the connection.
func (t *Transport) WriteFrame(payload []byte) error {
	t.cntMu.Lock()
	if t.frozen {
		t.cntMu.Unlock()
		return ErrFrozen
	}
	t.cntMu.Unlock()

	encoded, err := t.currentCodec().Encode(payload)
	if err != nil {
		return fmt.Errorf("frame: encode: %w", err)
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if err := writeRaw(t.conn, encoded); err != nil {
		t.markFrozen()
		return err
	}

	t.cntMu.Lock()
	t.sentCnt++
	t.pushBackup(payload)
	t.cntMu.Unlock()
	return nil
}

// pushBackup appends payload to the bounded FIFO backup log. Caller holds cntMu.
func (t *Transport) pushBackup(payload []byte) {
	if t.backupCap <= 0 {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.backup = append(t.backup, cp)
	if len(t.backup) > t.backupCap {
		t.backup = t.backup[len(t.backup)-t.backupCap:]
	}
}

func (t *Transport) markFrozen() {
	t.cntMu.Lock()
	t.frozen = true
	t.cntMu.Unlock()
}

// Frozen reports whether the transport is waiting for Synchronize.
func (t *Transport) Frozen() bool {
	t.cntMu.Lock()
	defer t.cntMu.Unlock()
	return t.frozen
}

// Counts returns the sent/received frame counters.
func (t *Transport) Counts() (sent, received uint64) {
	t.cntMu.Lock()
	defer t.cntMu.Unlock()
	return t.sentCnt, t.receivedCnt
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn.Close()
}
