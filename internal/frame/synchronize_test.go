package frame

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestBackupSinceReturnsMissingTail(t *testing.T) {
	tr := &Transport{sentCnt: 5, backup: [][]byte{[]byte("c"), []byte("d"), []byte("e")}}
	missing := tr.backupSince(2)
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing frames, got %d", len(missing))
	}
	if !bytes.Equal(missing[0], []byte("c")) {
		t.Errorf("missing[0] = %q, want c", missing[0])
	}
}

func TestBackupSinceNothingMissingWhenCaughtUp(t *testing.T) {
	tr := &Transport{sentCnt: 3, backup: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	if missing := tr.backupSince(3); missing != nil {
		t.Errorf("expected no missing frames, got %v", missing)
	}
}

func TestBackupSinceClampsToBackupCapacity(t *testing.T) {
	// backup log only retained the last 2 frames even though 5 were sent.
	tr := &Transport{sentCnt: 5, backup: [][]byte{[]byte("d"), []byte("e")}}
	missing := tr.backupSince(0)
	if len(missing) != 2 {
		t.Fatalf("expected clamp to 2 retained frames, got %d", len(missing))
	}
}

func TestSynchronizeReplacesConnAndUnfreezes(t *testing.T) {
	a1, b1 := net.Pipe()
	ta := NewTransport(a1, 16)
	tb := NewTransport(b1, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go ta.WriteFrame([]byte("frame-1"))
	if got, err := tb.ReadFrame(ctx); err != nil || !bytes.Equal(got, []byte("frame-1")) {
		t.Fatalf("frame-1: got %q, err %v", got, err)
	}

	a1.Close()
	b1.Close()
	ta.markFrozen()
	if !ta.Frozen() {
		t.Fatal("expected transport to be frozen")
	}

	a2, b2 := net.Pipe()
	defer a2.Close()
	defer b2.Close()

	syncDone := make(chan error, 1)
	go func() { syncDone <- ta.Synchronize(a2) }()
	if err := tb.Synchronize(b2); err != nil {
		t.Fatalf("tb.Synchronize: %v", err)
	}
	if err := <-syncDone; err != nil {
		t.Fatalf("ta.Synchronize: %v", err)
	}
	if ta.Frozen() {
		t.Error("expected transport to unfreeze after Synchronize")
	}

	go ta.WriteFrame([]byte("post-sync"))
	got, err := tb.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read after synchronize: %v", err)
	}
	if !bytes.Equal(got, []byte("post-sync")) {
		t.Errorf("got %q, want post-sync", got)
	}
}
