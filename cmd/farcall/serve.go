package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/farcall-dev/farcall/internal/auth"
	"github.com/farcall-dev/farcall/internal/carrier"
	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/logger"
	"github.com/farcall-dev/farcall/internal/mailbox"
	"github.com/farcall-dev/farcall/internal/server"
)

// serverCmd mirrors cmd/farcalld's listener so a single farcall binary can
// run the native executor directly — convenient for local testing without a
// separately installed daemon.
func serverCmd() *cobra.Command {
	sc := &cobra.Command{Use: "server", Short: "Run a farcall server in this process"}

	var listenAddr string
	var configDir string
	listen := &cobra.Command{
		Use:   "listen",
		Short: "Listen for connections and serve the native executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configDir == "" {
				home, _ := os.UserHomeDir()
				configDir = filepath.Join(home, ".farcall")
			}
			logger.Init("info", "")

			if _, err := auth.EnsureKeyPair(configDir); err != nil {
				return fmt.Errorf("ensure keypair: %w", err)
			}
			priv, err := auth.LoadPrivateKey(configDir)
			if err != nil {
				return err
			}

			ln, err := carrier.Listen(networkFlag, listenAddr)
			if err != nil {
				return err
			}
			defer ln.Close()

			disp := server.NewDispatcher(logger.Log)
			prefs := frame.ServerPreferences{PrivateKey: priv}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				ln.Close()
			}()

			fmt.Printf("farcall server listening on %s %s\n", networkFlag, listenAddr)
			return acceptLoop(ctx, ln, disp, wireForm(), prefs)
		},
	}
	listen.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:7878", "address to listen on")
	listen.Flags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.farcall)")
	sc.AddCommand(listen)
	return sc
}

func acceptLoop(ctx context.Context, ln net.Listener, disp *server.Dispatcher, form mailbox.WireForm, prefs frame.ServerPreferences) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			if err := disp.Accept(ctx, conn, form, prefs, 256); err != nil {
				logger.Debug("farcall server: connection closed", "err", err)
			}
		}()
	}
}
