package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/farcall-dev/farcall/internal/protocol"
)

func actionCmd() *cobra.Command {
	var pathFlag, dstFlag, dataFlag string
	var depthFlag uint64
	var allFlag, forceFlag bool

	cmd := &cobra.Command{
		Use:   "action <op>",
		Short: "Issue a single typed request and print its response as JSON",
		Long: "Supported ops: file_read, file_read_text, file_write, file_append, dir_read,\n" +
			"dir_create, remove, copy, rename, exists, metadata, system_info, version, capabilities.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ch, _, err := dial(ctx)
			if err != nil {
				return err
			}

			var payload protocol.RequestPayload
			switch args[0] {
			case "file_read":
				payload = &protocol.FileRead{Path: pathFlag}
			case "file_read_text":
				payload = &protocol.FileReadText{Path: pathFlag}
			case "file_write":
				payload = &protocol.FileWrite{Path: pathFlag, Data: []byte(dataFlag)}
			case "file_append":
				payload = &protocol.FileAppend{Path: pathFlag, Data: []byte(dataFlag)}
			case "dir_read":
				payload = &protocol.DirRead{Path: pathFlag, Depth: depthFlag, Absolute: true}
			case "dir_create":
				payload = &protocol.DirCreate{Path: pathFlag, All: allFlag}
			case "remove":
				payload = &protocol.Remove{Path: pathFlag, Force: forceFlag}
			case "copy":
				payload = &protocol.Copy{Src: pathFlag, Dst: dstFlag}
			case "rename":
				payload = &protocol.Rename{Src: pathFlag, Dst: dstFlag}
			case "exists":
				payload = &protocol.Exists{Path: pathFlag}
			case "metadata":
				payload = &protocol.MetadataReq{Path: pathFlag, Canonicalize: true, ResolveFileType: true}
			case "system_info":
				payload = &protocol.SystemInfoReq{}
			case "version":
				payload = &protocol.VersionReq{}
			case "capabilities":
				payload = &protocol.CapabilitiesReq{}
			default:
				return fmt.Errorf("unknown op %q", args[0])
			}

			resp, err := ch.Call(ctx, protocol.Request{Payload: payload})
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}

	cmd.Flags().StringVar(&pathFlag, "path", "", "path argument (src for copy/rename)")
	cmd.Flags().StringVar(&dstFlag, "dst", "", "destination path (copy/rename)")
	cmd.Flags().StringVar(&dataFlag, "data", "", "payload data for file_write/file_append")
	cmd.Flags().Uint64Var(&depthFlag, "depth", 0, "dir_read max depth, 0 = unlimited")
	cmd.Flags().BoolVar(&allFlag, "all", false, "dir_create: create parent directories too")
	cmd.Flags().BoolVar(&forceFlag, "force", false, "remove: recurse into non-empty directories")

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
