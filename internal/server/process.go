package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/farcall-dev/farcall/internal/protocol"
	"github.com/farcall-dev/farcall/internal/vt"
)

// Process is a single spawned child, grounded on egg.Session
// (_examples/ehrlich-b-wingthing/internal/egg/server.go): a *exec.Cmd plus
// whatever I/O plumbing its PTY/pipe mode needs. Persist keeps it alive
// (and reachable by AttachTo) past its owning connection's disconnect.
type Process struct {
	ID   string
	conn ConnID // owning connection; reassigned on AttachTo

	cmd     *exec.Cmd
	ptmx    *os.File // non-nil when spawned with a Pty
	vterm   *vt.VTerm
	stdin   io.WriteCloser
	stdinCh chan []byte

	pipeWG sync.WaitGroup // joined before cmd.Wait() so the final ProcStdout/ProcStderr chunk always precedes ProcDone

	mu       sync.Mutex
	persist  bool
	reply    func(originID string, payload protocol.ResponsePayload)
	originID string
	done     chan struct{}
}

// ProcessTable is the server-wide registry of running processes, grounded
// on PTYRoutes' mutex+map pattern
// (_examples/ehrlich-b-wingthing/internal/relay/pty_relay.go).
type ProcessTable struct {
	log *slog.Logger
	mu  sync.RWMutex
	m   map[string]*Process
}

func newProcessTable(log *slog.Logger) *ProcessTable {
	return &ProcessTable{log: log, m: make(map[string]*Process)}
}

func (t *ProcessTable) add(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[p.ID] = p
}

func (t *ProcessTable) get(id string) (*Process, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.m[id]
	return p, ok
}

func (t *ProcessTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
}

// removeConnection kills and drops every non-persisted process owned by
// connID, and leaves persisted ones running with no reply target (§4.4.3
// "their output can no longer be delivered — accepted as part of the
// contract") until a future AttachTo re-homes them.
func (t *ProcessTable) removeConnection(connID ConnID) {
	t.mu.Lock()
	var toKill []*Process
	for id, p := range t.m {
		p.mu.Lock()
		owned := p.conn == connID
		persist := p.persist
		p.mu.Unlock()
		if !owned {
			continue
		}
		if persist {
			p.mu.Lock()
			p.reply = nil
			p.mu.Unlock()
			continue
		}
		toKill = append(toKill, p)
		delete(t.m, id)
	}
	t.mu.Unlock()
	for _, p := range toKill {
		p.kill()
	}
}

// kill ends the process. Non-PTY children run in their own process group
// (Setpgid below) so a shell command's own subprocesses die with it too;
// unix.Kill on the negated pid signals the whole group the way job-control
// shells do. PTY children are a single foreground process under the pty, so
// a plain SIGHUP on the leader suffices there.
func (p *Process) kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	if p.ptmx != nil {
		_ = p.cmd.Process.Signal(syscall.SIGHUP)
		return
	}
	pid := p.cmd.Process.Pid
	if runtime.GOOS == "windows" {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		return
	}
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// handleProcSpawn implements §4.4.3: insert the process record before any
// I/O task starts, spawn a stdout reader, a stderr reader (PTY mode merges
// stderr into stdout), a stdin writer, and a wait task that emits exactly
// one ProcDone.
func (c *Connection) handleProcSpawn(ctx context.Context, originID string, req *protocol.ProcSpawn) {
	if req.AttachTo != "" {
		c.attachProcess(originID, req)
		return
	}

	args := splitCommandLine(req.Cmd)
	if len(args) == 0 {
		c.replyErr(originID, errUsage("empty command"))
		return
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if req.CurrentDir != "" {
		cmd.Dir = req.CurrentDir
	}
	if len(req.Environment) > 0 {
		env := os.Environ()
		for k, v := range req.Environment {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	id := uuid.NewString()
	p := &Process{ID: id, conn: c.ID, cmd: cmd, persist: req.Persist, reply: c.reply, originID: originID, done: make(chan struct{})}

	if req.Pty != nil {
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: req.Pty.Cols, Rows: req.Pty.Rows})
		if err != nil {
			c.replyErr(originID, err)
			return
		}
		p.ptmx = ptmx
		p.vterm = vt.NewVTerm(int(req.Pty.Cols), int(req.Pty.Rows))
		p.stdin = ptmx
		c.disp.procs.add(p)
		c.reply(originID, &protocol.ProcSpawned{ID: id})
		p.pipeWG.Add(1)
		go p.readPTYLoop()
		go p.waitLoop(c.disp.procs)
		return
	}

	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	if err := cmd.Start(); err != nil {
		c.replyErr(originID, err)
		return
	}
	p.stdin = stdin
	p.stdinCh = make(chan []byte, 64)
	c.disp.procs.add(p)
	c.reply(originID, &protocol.ProcSpawned{ID: id})

	p.pipeWG.Add(2)
	go p.stdinLoop()
	go p.pipeLoop(stdout, protocol.KindProcStdout)
	go p.pipeLoop(stderr, protocol.KindProcStderr)
	go p.waitLoop(c.disp.procs)
}

func errUsage(msg string) error { return &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: msg} }

// splitCommandLine tokenizes a command line the way each platform's shell
// would: whitespace-separated on Unix, matching the POSIX-style argv
// handling of _examples/ehrlich-b-wingthing/internal/egg; Windows
// additionally treats double-quoted spans as one
// argument (§4.4.3).
func splitCommandLine(cmd string) []string {
	if runtime.GOOS != "windows" {
		return strings.Fields(cmd)
	}
	var args []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range cmd {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

func (p *Process) doReply(payload protocol.ResponsePayload) {
	p.mu.Lock()
	reply, origin := p.reply, p.originID
	p.mu.Unlock()
	if reply != nil {
		reply(origin, payload)
	}
}

// readPTYLoop streams PTY output as ProcStdout chunks and feeds the VTerm
// scrollback, grounded on readPTY (egg/server.go).
func (p *Process) readPTYLoop() {
	defer p.pipeWG.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			_, _ = p.vterm.Write(chunk)
			p.doReply(&protocol.ProcStdout{ID: p.ID, Data: chunk})
			time.Sleep(time.Millisecond) // coalesce bursts, per §4.4.3
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) pipeLoop(r io.Reader, kind protocol.RespKind) {
	defer p.pipeWG.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if kind == protocol.KindProcStdout {
				p.doReply(&protocol.ProcStdout{ID: p.ID, Data: chunk})
			} else {
				p.doReply(&protocol.ProcStderr{ID: p.ID, Data: chunk})
			}
			time.Sleep(time.Millisecond)
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) stdinLoop() {
	for data := range p.stdinCh {
		if _, err := p.stdin.Write(data); err != nil {
			return
		}
	}
}

// waitLoop joins the stdout/stderr (or PTY) reader goroutines before calling
// cmd.Wait, per Go's exec.Cmd.StdoutPipe/StderrPipe docs: it is incorrect to
// call Wait before all reads from those pipes have completed, since Wait
// closes them on process exit. Readers hit io.EOF on their own once the
// child's fds close, so joining them first (rather than racing Wait against
// them) guarantees the final ProcStdout/ProcStderr chunk is always emitted
// before ProcDone (§4.4.3 step b).
func (p *Process) waitLoop(table *ProcessTable) {
	p.pipeWG.Wait()
	err := p.cmd.Wait()
	if p.ptmx != nil {
		p.ptmx.Close()
	} else if p.stdinCh != nil {
		close(p.stdinCh)
	}
	close(p.done)
	table.remove(p.ID)

	success := err == nil
	var code *int
	if exitErr, ok := err.(*exec.ExitError); ok {
		if n := exitErr.ExitCode(); n >= 0 {
			code = &n // n == -1 means signal-terminated (killed): code stays absent
		}
	} else if err == nil {
		n := 0
		code = &n
	}
	p.doReply(&protocol.ProcDone{ID: p.ID, Success: success, Code: code})
}

func (c *Connection) handleProcStdin(originID string, req *protocol.ProcStdin) {
	p, ok := c.disp.procs.get(req.ID)
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such process"})
		return
	}
	if p.ptmx != nil {
		if _, err := p.ptmx.Write(req.Data); err != nil {
			c.replyErr(originID, err)
			return
		}
		c.reply(originID, &protocol.Ok{})
		return
	}
	select {
	case p.stdinCh <- req.Data:
		c.reply(originID, &protocol.Ok{})
	default:
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrBrokenPipe, Description: "stdin channel full or closed"})
	}
}

func (c *Connection) handleProcKill(originID string, req *protocol.ProcKill) {
	p, ok := c.disp.procs.get(req.ID)
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such process"})
		return
	}
	p.kill()
	c.reply(originID, &protocol.Ok{})
}

func (c *Connection) handleProcResizePty(originID string, req *protocol.ProcResizePty) {
	p, ok := c.disp.procs.get(req.ID)
	if !ok || p.ptmx == nil {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such pty process"})
		return
	}
	if err := pty.Setsize(p.ptmx, &pty.Winsize{Cols: req.Size.Cols, Rows: req.Size.Rows}); err != nil {
		c.replyErr(originID, err)
		return
	}
	if p.vterm != nil {
		p.vterm.Resize(int(req.Size.Cols), int(req.Size.Rows))
	}
	c.reply(originID, &protocol.Ok{})
}

// attachProcess re-homes a persisted PTY process onto this connection
// (SPEC_FULL.md §4 supplemental feature #2) and primes it with the stored
// scrollback as a single ProcStdout burst instead of a blank terminal.
func (c *Connection) attachProcess(originID string, req *protocol.ProcSpawn) {
	p, ok := c.disp.procs.get(req.AttachTo)
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such process to attach to"})
		return
	}
	p.mu.Lock()
	p.conn = c.ID
	p.reply = c.reply
	p.originID = originID
	p.mu.Unlock()

	c.reply(originID, &protocol.ProcSpawned{ID: p.ID})
	if p.vterm != nil {
		if burst := p.vterm.Snapshot(); len(burst) > 0 {
			c.reply(originID, &protocol.ProcStdout{ID: p.ID, Data: []byte(burst)})
		}
	}
}
