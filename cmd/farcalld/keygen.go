package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/farcall-dev/farcall/internal/auth"
)

func keygenCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate (or print) this daemon's X25519 handshake keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configDir == "" {
				home, _ := os.UserHomeDir()
				configDir = filepath.Join(home, ".farcall")
			}
			pub, err := auth.EnsureKeyPair(configDir)
			if err != nil {
				return err
			}
			fmt.Println(pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.farcall)")
	return cmd
}
