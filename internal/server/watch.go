package server

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// registration ties one connection's watch(path, recursive, only, except)
// call to the set of change kinds it wants delivered.
type registration struct {
	conn      ConnID
	recursive bool
	only      map[protocol.ChangeKind]bool
	except    map[protocol.ChangeKind]bool
	reply     func(originID string, payload protocol.ResponsePayload)
	originID  string
}

func (r *registration) wants(kind protocol.ChangeKind) bool {
	if len(r.only) > 0 && !r.only[kind] {
		return false
	}
	if r.except[kind] {
		return false
	}
	return true
}

// WatcherRegistry is the single OS-level notifier servicing every
// connection's watch registrations (§4.4.4): one fsnotify.Watcher, many
// registered paths, dispatched by longest-prefix match.
type WatcherRegistry struct {
	log *slog.Logger
	w   *fsnotify.Watcher

	mu   sync.RWMutex
	regs map[string][]*registration // path -> registrations on that exact path
}

func newWatcherRegistry(log *slog.Logger) *WatcherRegistry {
	w, err := fsnotify.NewWatcher()
	reg := &WatcherRegistry{log: log, regs: make(map[string][]*registration)}
	if err != nil {
		log.Error("server: fsnotify unavailable, watch requests will fail", "err", err)
		return reg
	}
	reg.w = w
	go reg.run()
	return reg
}

func (r *WatcherRegistry) run() {
	for {
		select {
		case ev, ok := <-r.w.Events:
			if !ok {
				return
			}
			r.dispatch(ev)
		case _, ok := <-r.w.Errors:
			if !ok {
				return
			}
		}
	}
}

// dispatch finds the registration whose watched path is the longest
// ancestor of ev.Name and forwards a Changed record to it; an event under
// no registered path is dropped (§4.4.4).
func (r *WatcherRegistry) dispatch(ev fsnotify.Event) {
	kind := changeKindOf(ev.Op)
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	for path := range r.regs {
		if !pathContains(path, ev.Name) {
			continue
		}
		if len(path) > len(best) {
			best = path
		}
	}
	if best == "" {
		return
	}
	for _, reg := range r.regs[best] {
		if !reg.wants(kind) {
			continue
		}
		reg.reply(reg.originID, &protocol.Changed{Change: protocol.ChangeRecord{
			TimestampMs: time.Now().UnixMilli(),
			Kind:        kind,
			Path:        ev.Name,
		}})
	}
}

func pathContains(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func changeKindOf(op fsnotify.Op) protocol.ChangeKind {
	switch {
	case op&fsnotify.Create != 0:
		return protocol.ChangeCreate
	case op&fsnotify.Remove != 0:
		return protocol.ChangeRemove
	case op&fsnotify.Rename != 0:
		return protocol.ChangeRename
	case op&fsnotify.Write != 0:
		return protocol.ChangeModify
	case op&fsnotify.Chmod != 0:
		return protocol.ChangeAttribute
	default:
		return protocol.ChangeOther
	}
}

func (r *WatcherRegistry) removeConnection(connID ConnID) {
	if r.w == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, regs := range r.regs {
		kept := regs[:0]
		for _, reg := range regs {
			if reg.conn != connID {
				kept = append(kept, reg)
			}
		}
		if len(kept) == 0 {
			delete(r.regs, path)
			_ = r.w.Remove(path)
		} else {
			r.regs[path] = kept
		}
	}
}

func (c *Connection) handleWatch(originID string, req *protocol.Watch) {
	if c.disp.watchers.w == nil {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrUnsupported, Description: "filesystem watching unavailable"})
		return
	}
	root, err := filepath.Abs(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	if resolved, rerr := filepath.EvalSymlinks(root); rerr == nil {
		root = resolved
	}

	reg := &registration{conn: c.ID, recursive: req.Recursive, reply: c.reply, originID: originID}
	if len(req.Only) > 0 {
		reg.only = make(map[protocol.ChangeKind]bool, len(req.Only))
		for _, k := range req.Only {
			reg.only[k] = true
		}
	}
	if len(req.Except) > 0 {
		reg.except = make(map[protocol.ChangeKind]bool, len(req.Except))
		for _, k := range req.Except {
			reg.except[k] = true
		}
	}

	w := c.disp.watchers
	w.mu.Lock()
	w.regs[root] = append(w.regs[root], reg)
	w.mu.Unlock()
	if err := w.w.Add(root); err != nil {
		c.replyErr(originID, err)
		return
	}
	if req.Recursive {
		// fsnotify has no native recursive mode; add every existing
		// subdirectory so longest-prefix dispatch still finds this
		// registration for events under them.
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || path == root || !d.IsDir() {
				return nil
			}
			_ = w.w.Add(path)
			return nil
		})
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Connection) handleUnwatch(originID string, req *protocol.Unwatch) {
	root, err := filepath.Abs(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	w := c.disp.watchers
	w.mu.Lock()
	regs, ok := w.regs[root]
	if ok {
		kept := regs[:0]
		for _, reg := range regs {
			if reg.conn != c.ID {
				kept = append(kept, reg)
			}
		}
		if len(kept) == 0 {
			delete(w.regs, root)
			if w.w != nil {
				_ = w.w.Remove(root)
			}
		} else {
			w.regs[root] = kept
		}
	}
	w.mu.Unlock()
	c.reply(originID, &protocol.Ok{})
}
