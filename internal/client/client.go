// Package client is the thin connection wrapper cmd/farcall builds on: dial
// a carrier, run the client handshake, and hand back a mailbox.Channel ready
// to Send/Call typed requests. Grounded on
// transport.NewClient (_examples/ehrlich-b-wingthing/internal/transport)
// for the "one constructor, dial lazily per call" shape.
package client

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/farcall-dev/farcall/internal/carrier"
	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/mailbox"
)

// Options configures how Dial reaches and negotiates with a server.
type Options struct {
	Network     string
	Address     string
	Form        mailbox.WireForm
	Compression frame.CompressionAlgo
	Encryption  frame.EncryptionAlgo
	BackupCap   int
	Logger      *slog.Logger
}

// Dial opens a carrier connection, runs the client-side frame handshake,
// and returns a ready mailbox.Channel plus the PostOffice it delivers into.
// Typed calls go through the Channel (internal/mailbox/typed.go's
// CallTyped/StreamTyped).
func Dial(ctx context.Context, opts Options) (*mailbox.Channel, *mailbox.PostOffice, error) {
	conn, err := carrier.Dial(ctx, opts.Network, opts.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("client: dial %s %s: %w", opts.Network, opts.Address, err)
	}

	backupCap := opts.BackupCap
	if backupCap <= 0 {
		backupCap = 256
	}
	tr := frame.NewTransport(conn, backupCap)

	prefs := frame.ClientPreferences{Compression: opts.Compression, Encryption: opts.Encryption}
	if opts.Encryption != "" {
		priv, err := ecdh.X25519().GenerateKey(rand.Reader)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("client: generate ephemeral key: %w", err)
		}
		prefs.PrivateKey = priv
	}
	if err := tr.HandshakeClient(prefs); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("client: handshake: %w", err)
	}

	post := mailbox.NewPostOffice(64)
	ch := mailbox.NewChannel(ctx, tr, opts.Form, post, opts.Logger)
	return ch, post, nil
}
