package sshexec

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// process is the SSH-channel analogue of server.Process: one SSH session
// per spawned command, since a conventional SSH server gives us no PTY
// reattach or persistence primitive (§6 — ProcSpawn.Persist/AttachTo are
// silently ignored here rather than rejected, since a client that never
// asked for them sees identical behavior).
type process struct {
	id      string
	session *ssh.Session
	stdin   io.WriteCloser
	hasPty  bool

	mu   sync.Mutex
	conn *Conn
}

func (c *Conn) handleProcSpawn(originID string, req *protocol.ProcSpawn) {
	if req.CurrentDir != "" {
		c.replyErr(originID, unsupported("the current_dir spawn option"))
		return
	}

	session, err := c.disp.ssh.NewSession()
	if err != nil {
		c.replyErr(originID, err)
		return
	}

	for k, v := range req.Environment {
		// Most sshd configs only honor env names matching AcceptEnv; a
		// rejected Setenv is not fatal to spawning the command.
		_ = session.Setenv(k, v)
	}

	hasPty := req.Pty != nil
	if hasPty {
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm-256color", int(req.Pty.Rows), int(req.Pty.Cols), modes); err != nil {
			session.Close()
			c.replyErr(originID, err)
			return
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		c.replyErr(originID, err)
		return
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		c.replyErr(originID, err)
		return
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		c.replyErr(originID, err)
		return
	}

	id := uuid.NewString()
	p := &process{id: id, session: session, stdin: stdin, hasPty: hasPty, conn: c}

	if hasPty {
		err = session.Shell()
	} else {
		err = session.Start(req.Cmd)
	}
	if err != nil {
		session.Close()
		c.replyErr(originID, err)
		return
	}

	c.disp.mu.Lock()
	c.disp.procs[id] = p
	c.disp.mu.Unlock()

	c.reply(originID, &protocol.ProcSpawned{ID: id})

	go p.pipeLoop(stdout, protocol.KindProcStdout)
	go p.pipeLoop(stderr, protocol.KindProcStderr)
	go p.waitLoop(c.disp)
}

func (p *process) pipeLoop(r io.Reader, kind protocol.RespKind) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			if conn != nil {
				if kind == protocol.KindProcStdout {
					conn.reply(p.originID(), &protocol.ProcStdout{ID: p.id, Data: chunk})
				} else {
					conn.reply(p.originID(), &protocol.ProcStderr{ID: p.id, Data: chunk})
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// originID returns the process id: sshexec replies are tagged with it
// rather than the originating ProcSpawn's request id, since — unlike
// internal/server — there is exactly one Conn per tunnel and no cross-
// connection reattach to keep separate.
func (p *process) originID() string { return p.id }

func (p *process) waitLoop(d *Dispatcher) {
	err := p.session.Wait()
	success := err == nil
	var code *int
	if ee, ok := err.(*ssh.ExitError); ok {
		n := ee.ExitStatus()
		code = &n
	} else if err == nil {
		zero := 0
		code = &zero
	}

	d.mu.Lock()
	delete(d.procs, p.id)
	d.mu.Unlock()

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		conn.reply(p.originID(), &protocol.ProcDone{ID: p.id, Success: success, Code: code})
	}
	p.session.Close()
}

func (c *Conn) handleProcStdin(originID string, req *protocol.ProcStdin) {
	c.disp.mu.Lock()
	p, ok := c.disp.procs[req.ID]
	c.disp.mu.Unlock()
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such process: " + req.ID})
		return
	}
	if _, err := p.stdin.Write(req.Data); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Conn) handleProcKill(originID string, req *protocol.ProcKill) {
	c.disp.mu.Lock()
	p, ok := c.disp.procs[req.ID]
	c.disp.mu.Unlock()
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such process: " + req.ID})
		return
	}
	if err := p.session.Signal(ssh.SIGTERM); err != nil {
		// Many sshd builds reject signal requests outright; closing the
		// session is the fallback that always works.
		p.session.Close()
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Conn) handleProcResizePty(originID string, req *protocol.ProcResizePty) {
	c.disp.mu.Lock()
	p, ok := c.disp.procs[req.ID]
	c.disp.mu.Unlock()
	if !ok {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrNotFound, Description: "no such process: " + req.ID})
		return
	}
	if !p.hasPty {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: "process has no pty"})
		return
	}
	if err := p.session.WindowChange(int(req.Size.Rows), int(req.Size.Cols)); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}
