package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// captured is a minimal reply sink for exercising handlers without a real
// Connection/transport, following the hand-rolled fake pattern used
// throughout _examples/ehrlich-b-wingthing rather than a mock framework.
type captured struct {
	payload protocol.ResponsePayload
}

func newTestConnection(capture *captured) *Connection {
	c := &Connection{ID: 1}
	c.replyFn = func(_ string, p protocol.ResponsePayload) {
		capture.payload = p
	}
	return c
}

func TestHandleExistsReportsTrueAndFalse(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.txt")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var cap1 captured
	c := newTestConnection(&cap1)
	c.handleExists("r1", &protocol.Exists{Path: present})
	resp, ok := cap1.payload.(*protocol.ExistsResp)
	if !ok || !resp.Value {
		t.Fatalf("expected ExistsResp{true}, got %+v", cap1.payload)
	}

	var cap2 captured
	c2 := newTestConnection(&cap2)
	c2.handleExists("r2", &protocol.Exists{Path: filepath.Join(dir, "missing.txt")})
	resp2, ok := cap2.payload.(*protocol.ExistsResp)
	if !ok || resp2.Value {
		t.Fatalf("expected ExistsResp{false}, got %+v", cap2.payload)
	}
}

func TestHandleDirReadRespectsDepthAndIncludeRoot(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755)
	os.WriteFile(filepath.Join(dir, "a", "f1.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "a", "b", "f2.txt"), []byte("x"), 0o644)

	var cap1 captured
	c := newTestConnection(&cap1)
	c.handleDirRead("r1", &protocol.DirRead{Path: dir, Depth: 1, Absolute: true})

	resp, ok := cap1.payload.(*protocol.DirEntries)
	if !ok {
		t.Fatalf("expected DirEntries, got %+v", cap1.payload)
	}
	for _, e := range resp.Entries {
		if e.Depth == 0 {
			t.Errorf("root entry %q listed without IncludeRoot", e.Path)
		}
		if e.Depth > 1 {
			t.Errorf("entry %q exceeded requested depth: %d", e.Path, e.Depth)
		}
	}
}

func TestHandleFileWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	var cap1 captured
	c := newTestConnection(&cap1)
	c.handleFileWrite("r1", &protocol.FileWrite{Path: path, Data: []byte("hello")})
	if _, ok := cap1.payload.(*protocol.Ok); !ok {
		t.Fatalf("expected Ok, got %+v", cap1.payload)
	}

	var cap2 captured
	c2 := newTestConnection(&cap2)
	c2.handleFileReadText("r2", &protocol.FileReadText{Path: path})
	resp, ok := cap2.payload.(*protocol.Text)
	if !ok || resp.Data != "hello" {
		t.Fatalf("expected Text{hello}, got %+v", cap2.payload)
	}
}

func TestHandleCopyRefusesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	os.WriteFile(target, []byte("x"), 0o644)
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	var cap1 captured
	c := newTestConnection(&cap1)
	c.handleCopy("r1", &protocol.Copy{Src: link, Dst: filepath.Join(dir, "copy.txt")})
	errResp, ok := cap1.payload.(*protocol.Error)
	if !ok {
		t.Fatalf("expected Error payload refusing symlink copy, got %+v", cap1.payload)
	}
	if errResp.ErrKind == "" {
		t.Error("expected a populated error kind")
	}
}
