package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/farcall-dev/farcall/internal/mailbox"
	"github.com/farcall-dev/farcall/internal/protocol"
)

// shellCmd spawns an interactive PTY-backed process on the server and
// relays stdin/stdout, putting the local terminal in raw mode and following
// SIGWINCH — the client-side mirror of cmd/wt/egg.go's attach loop,
// adapted from its gRPC session stream onto a farcall ProcSpawn/
// ProcStdin/ProcStdout conversation.
func shellCmd() *cobra.Command {
	var cmdFlag string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive remote shell over a PTY-backed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch, _, err := dial(ctx)
			if err != nil {
				return err
			}

			fd := int(os.Stdin.Fd())
			cols, rows := 80, 24
			if term.IsTerminal(fd) {
				if w, h, err := term.GetSize(fd); err == nil {
					cols, rows = w, h
				}
			}

			shell := cmdFlag
			if shell == "" {
				shell = os.Getenv("SHELL")
				if shell == "" {
					shell = "/bin/sh"
				}
			}

			spawned, err := mailbox.CallTyped[*protocol.ProcSpawned](ctx, ch, protocol.Request{
				Payload: &protocol.ProcSpawn{
					Cmd: shell,
					Pty: &protocol.PtySize{Cols: uint16(cols), Rows: uint16(rows)},
				},
			})
			if err != nil {
				return fmt.Errorf("spawn shell: %w", err)
			}
			procID := spawned.ID

			if term.IsTerminal(fd) {
				oldState, err := term.MakeRaw(fd)
				if err == nil {
					defer term.Restore(fd, oldState)
				}
			}

			winch := make(chan os.Signal, 1)
			signal.Notify(winch, syscall.SIGWINCH)
			defer signal.Stop(winch)
			go func() {
				for range winch {
					if w, h, err := term.GetSize(fd); err == nil {
						ch.Send(protocol.Request{Payload: &protocol.ProcResizePty{
							ID:   procID,
							Size: protocol.PtySize{Cols: uint16(w), Rows: uint16(h)},
						}})
					}
				}
			}()

			// ProcSpawned was this conversation's only response claimed
			// through CallTyped, so its mailbox is already closed; the
			// proc_stdout/proc_stderr/proc_done responses that follow,
			// sharing the same origin_id, arrive on Channel.Unsolicited
			// instead (spec §4.2's "many responses, one origin_id").
			return runShellRelay(ctx, ch, procID)
		},
	}
	cmd.Flags().StringVar(&cmdFlag, "cmd", "", "command to run (default $SHELL)")
	return cmd
}

// runShellRelay pumps stdin into proc_stdin requests and prints every
// proc_stdout/proc_stderr response sharing the spawn's origin_id, until the
// server sends proc_done.
func runShellRelay(ctx context.Context, ch *mailbox.Channel, procID string) error {
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				ch.Send(protocol.Request{Payload: &protocol.ProcStdin{ID: procID, Data: append([]byte(nil), buf[:n]...)}})
			}
			if err != nil {
				if err != io.EOF {
					fmt.Fprintln(os.Stderr, "stdin:", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case resp := <-ch.Unsolicited():
			switch p := resp.Payload.(type) {
			case *protocol.ProcStdout:
				if p.ID == procID {
					os.Stdout.Write(p.Data)
				}
			case *protocol.ProcStderr:
				if p.ID == procID {
					os.Stderr.Write(p.Data)
				}
			case *protocol.ProcDone:
				if p.ID == procID {
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
