package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func generateCompletionsCmd() *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:   "generate-completions",
		Short: "Print a shell completion script to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch shell {
			case "bash":
				return root.GenBashCompletion(os.Stdout)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return root.GenBashCompletion(os.Stdout)
			}
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "bash", "bash, zsh, fish, or powershell")
	return cmd
}

func manpageCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "manpage",
		Short: "Generate man pages for the whole command tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = "."
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			header := &doc.GenManHeader{Title: "FARCALL", Section: "1"}
			return doc.GenManTree(cmd.Root(), header, outDir)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: current directory)")
	return cmd
}
