package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/farcall-dev/farcall/internal/protocol"
	"github.com/farcall-dev/farcall/internal/search"
)

// SearchRegistry tracks in-flight searches so search_cancel can find and
// cancel them. The executor's own job here is only start/cancel dispatch
// (§4.4.5); the engine itself lives in internal/search.
type SearchRegistry struct {
	log *slog.Logger
	mu  sync.Mutex
	m   map[string]*search.Run
}

func newSearchRegistry(log *slog.Logger) *SearchRegistry {
	return &SearchRegistry{log: log, m: make(map[string]*search.Run)}
}

func (r *SearchRegistry) removeConnection(connID ConnID) {
	r.mu.Lock()
	var toCancel []*search.Run
	for id, run := range r.m {
		if run.ConnID == uint64(connID) {
			toCancel = append(toCancel, run)
			delete(r.m, id)
		}
	}
	r.mu.Unlock()
	for _, run := range toCancel {
		run.Cancel()
	}
}

func (c *Connection) handleSearchStart(ctx context.Context, originID string, req *protocol.SearchStart) {
	id := uuid.NewString()
	run, err := search.Start(ctx, id, req.Query, func(results []protocol.SearchMatch) {
		c.reply(originID, &protocol.SearchResults{ID: id, Matches: results})
	}, func() {
		c.reply(originID, &protocol.SearchDone{ID: id})
		c.disp.searches.mu.Lock()
		delete(c.disp.searches.m, id)
		c.disp.searches.mu.Unlock()
	})
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	run.ConnID = uint64(c.ID)

	c.disp.searches.mu.Lock()
	c.disp.searches.m[id] = run
	c.disp.searches.mu.Unlock()

	c.reply(originID, &protocol.SearchStarted{ID: id})
}

func (c *Connection) handleSearchCancel(originID string, req *protocol.SearchCancel) {
	c.disp.searches.mu.Lock()
	run, ok := c.disp.searches.m[req.ID]
	c.disp.searches.mu.Unlock()
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such search"})
		return
	}
	run.Cancel()
	c.reply(originID, &protocol.Ok{})
}
