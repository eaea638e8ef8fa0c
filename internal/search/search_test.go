package search

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/farcall-dev/farcall/internal/protocol"
)

func collect(t *testing.T, query protocol.SearchQuery) ([]protocol.SearchMatch, bool) {
	t.Helper()
	var mu sync.Mutex
	var matches []protocol.SearchMatch
	done := make(chan struct{})

	run, err := Start(context.Background(), "s1", query, func(batch []protocol.SearchMatch) {
		mu.Lock()
		matches = append(matches, batch...)
		mu.Unlock()
	}, func() {
		close(done)
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = run

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not finish in time")
	}
	mu.Lock()
	defer mu.Unlock()
	return matches, true
}

func TestSearchContentsFindsMatchingLine(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world\nfoo bar\nhello again\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	matches, _ := collect(t, protocol.SearchQuery{
		Paths:     []string{dir},
		Target:    protocol.SearchTargetContents,
		Condition: protocol.Condition{Kind: "regex", Value: "hello"},
	})

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}
	for _, m := range matches {
		if len(m.Submatches) != 1 {
			t.Errorf("expected 1 submatch, got %d", len(m.Submatches))
		}
	}
}

func TestSearchPathMatchesFileName(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "needle.go"), []byte("package x\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "other.go"), []byte("package x\n"), 0o644)

	matches, _ := collect(t, protocol.SearchQuery{
		Paths:     []string{dir},
		Target:    protocol.SearchTargetPath,
		Condition: protocol.Condition{Kind: "fixed_string", Value: "needle"},
	})

	if len(matches) != 1 || matches[0].Path != filepath.Join(dir, "sub", "needle.go") {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestSearchCancelStopsBeforeCompletion(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 50; i++ {
		os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i%26))+".txt"), []byte("hello\n"), 0o644)
	}

	done := make(chan struct{})
	run, err := Start(context.Background(), "s2", protocol.SearchQuery{
		Paths:     []string{dir},
		Target:    protocol.SearchTargetContents,
		Condition: protocol.Condition{Kind: "regex", Value: "hello"},
	}, func([]protocol.SearchMatch) {}, func() { close(done) })
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not complete search in time")
	}
}

func TestCompileConditionRejectsInvalidRegex(t *testing.T) {
	_, err := Start(context.Background(), "s3", protocol.SearchQuery{
		Paths:     []string{t.TempDir()},
		Target:    protocol.SearchTargetContents,
		Condition: protocol.Condition{Kind: "regex", Value: "("},
	}, func([]protocol.SearchMatch) {}, func() {})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
