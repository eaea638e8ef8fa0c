package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/farcall-dev/farcall/internal/auth"
	"github.com/farcall-dev/farcall/internal/carrier"
	"github.com/farcall-dev/farcall/internal/config"
	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/logger"
	"github.com/farcall-dev/farcall/internal/mailbox"
	"github.com/farcall-dev/farcall/internal/server"
)

func main() {
	var configDir string
	var listenFlag string
	var formFlag string

	root := &cobra.Command{
		Use:   "farcalld",
		Short: "farcall daemon — the native, local-filesystem request executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configDir == "" {
				home, _ := os.UserHomeDir()
				configDir = filepath.Join(home, ".farcall")
			}

			mgr := config.NewManager()
			if err := mgr.Load(configDir, "."); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := mgr.Get()

			if err := logger.Init(cfg.LogLevel, filepath.Join(configDir, "farcalld.log")); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			if listenFlag != "" {
				cfg.Listen = listenFlag
			}

			if _, err := auth.EnsureKeyPair(configDir); err != nil {
				return fmt.Errorf("ensure keypair: %w", err)
			}
			priv, err := auth.LoadPrivateKey(configDir)
			if err != nil {
				return fmt.Errorf("load keypair: %w", err)
			}

			prefs := frame.ServerPreferences{PrivateKey: priv}
			for _, c := range cfg.Compression {
				prefs.Compression = append(prefs.Compression, frame.CompressionAlgo(c.Algo))
			}
			for _, e := range cfg.Encryption {
				prefs.Encryption = append(prefs.Encryption, frame.EncryptionAlgo(e))
			}

			form := mailbox.WireBinary
			if formFlag == "json" {
				form = mailbox.WireJSON
			}

			network, address, err := splitListen(cfg.Listen)
			if err != nil {
				return err
			}
			ln, err := carrier.Listen(network, address)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
			}
			defer ln.Close()

			disp := server.NewDispatcher(logger.Log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				ln.Close()
			}()

			logger.Info("farcalld listening", "addr", cfg.Listen)
			return acceptLoop(ctx, ln, disp, form, prefs, cfg.BackupCapacity)
		},
	}

	root.Flags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.farcall)")
	root.Flags().StringVar(&listenFlag, "listen", "", "listen address, overrides config.yaml (e.g. tcp://0.0.0.0:7878)")
	root.Flags().StringVar(&formFlag, "wire", "binary", "wire form for accepted connections: binary or json")

	root.AddCommand(keygenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func acceptLoop(ctx context.Context, ln net.Listener, disp *server.Dispatcher, form mailbox.WireForm, prefs frame.ServerPreferences, backupCap int) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			if err := disp.Accept(ctx, conn, form, prefs, backupCap); err != nil {
				logger.Debug("farcalld: connection closed", "err", err)
			}
		}()
	}
}

// splitListen parses "tcp://host:port" or "unix:///path/to.sock" into the
// network/address pair net.Listen expects.
func splitListen(listen string) (network, address string, err error) {
	parts := strings.SplitN(listen, "://", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid listen address %q: want network://address", listen)
	}
	return parts[0], parts[1], nil
}
