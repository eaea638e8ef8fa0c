package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	networkFlag     string
	addressFlag     string
	wireFlag        string
	compressionFlag string
	encryptionFlag  string
)

func main() {
	root := &cobra.Command{
		Use:   "farcall",
		Short: "farcall — remote filesystem & process access client",
		Long:  "Issues typed requests against a farcall server (native or SSH-tunnelled) over a single multiplexed connection.",
	}

	root.PersistentFlags().StringVar(&networkFlag, "network", "tcp", "carrier network: tcp, unix")
	root.PersistentFlags().StringVar(&addressFlag, "address", "127.0.0.1:7878", "server address")
	root.PersistentFlags().StringVar(&wireFlag, "wire", "binary", "wire form: binary or json")
	root.PersistentFlags().StringVar(&compressionFlag, "compression", "", "requested compression algo: deflate, gzip, zlib")
	root.PersistentFlags().StringVar(&encryptionFlag, "encryption", "", "requested encryption algo: xchacha20poly1305")

	root.AddCommand(
		actionCmd(),
		shellCmd(),
		serverCmd(),
		generateCompletionsCmd(),
		manpageCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
