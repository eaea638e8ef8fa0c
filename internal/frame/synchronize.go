package frame

import (
	"encoding/json"
	"fmt"
	"io"
)

// syncFrame is exchanged, uncoded, immediately after a reconnect: each side
// reports how many frames it had received on the dead connection so the
// peer knows which backlogged frames to resend.
type syncFrame struct {
	ReceivedCnt uint64 `json:"received_cnt"`
}

// Synchronize implements spec §4.1.5: after a transport has frozen because
// the underlying connection died, the caller supplies a freshly reconnected
// conn. Synchronize exchanges received counts with the peer over that new
// conn and replays whichever backlogged frames the peer is missing, then
// unfreezes the transport so WriteFrame/ReadFrame resume normally.
//
// The negotiated codec survives a Synchronize call — only the raw conn and
// the pump/buffer state are replaced.
//
// This is a simplified §4.1.5: it exchanges only a received count and
// replays the backup log tail. It does not implement the
// available_cnt/expected_cnt read-into-incoming-buffer step or the
// backup-cap correction (receivedCnt := other.sentCnt when the peer's
// advertised count is already out of backup range) that step 5 of §4.1.5
// specifies for the dropped-due-to-cap branch — a peer requesting frames
// this side already evicted from its backup log is not recovered here,
// only capped to whatever backlog remains (see backupSince).
func (t *Transport) Synchronize(conn io.ReadWriteCloser) error {
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	// The sync frame exchange is symmetric — both peers write their own
	// count and read the other's — so the write is fired from a goroutine
	// to avoid the two sides deadlocking against each other's blocking Write.
	_, mine := t.Counts()
	writeErr := make(chan error, 1)
	go func() { writeErr <- writeRaw(t.conn, mustMarshal(syncFrame{ReceivedCnt: mine})) }()

	raw, err := readRaw(t.conn)
	if err != nil {
		return fmt.Errorf("frame: synchronize: read sync frame: %w", err)
	}
	if err := <-writeErr; err != nil {
		return fmt.Errorf("frame: synchronize: send sync frame: %w", err)
	}
	var peer syncFrame
	if err := json.Unmarshal(raw, &peer); err != nil {
		return fmt.Errorf("frame: synchronize: decode sync frame: %w", err)
	}

	t.cntMu.Lock()
	missing := t.backupSince(peer.ReceivedCnt)
	t.cntMu.Unlock()

	for _, payload := range missing {
		encoded, err := t.currentCodec().Encode(payload)
		if err != nil {
			return fmt.Errorf("frame: synchronize: re-encode backlog frame: %w", err)
		}
		if err := writeRaw(t.conn, encoded); err != nil {
			return fmt.Errorf("frame: synchronize: resend backlog frame: %w", err)
		}
	}

	t.readMu.Lock()
	t.inBuf = nil
	t.readErr = nil
	t.readMu.Unlock()
	t.resetPump()

	t.cntMu.Lock()
	t.frozen = false
	t.cntMu.Unlock()
	return nil
}

// backupSince returns the tail of the backup log the peer is missing, given
// it last acknowledged peerReceived frames. Caller holds cntMu.
func (t *Transport) backupSince(peerReceived uint64) [][]byte {
	if peerReceived >= t.sentCnt {
		return nil
	}
	missingCount := t.sentCnt - peerReceived
	if missingCount > uint64(len(t.backup)) {
		missingCount = uint64(len(t.backup))
	}
	return t.backup[uint64(len(t.backup))-missingCount:]
}

func mustMarshal(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
