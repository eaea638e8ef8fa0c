package server

import (
	"os"
	"os/user"
	"runtime"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// Version is the executor's protocol version (spec §3 "Version").
var Version = protocol.VersionInfo{Major: 0, Minor: 1, Patch: 0}

func (c *Connection) handleSystemInfo(originID string) {
	family := "unix"
	sep := "/"
	if runtime.GOOS == "windows" {
		family = "windows"
		sep = "\\"
	}
	cwd, _ := os.Getwd()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	shell := os.Getenv("SHELL")
	if shell == "" && runtime.GOOS == "windows" {
		shell = os.Getenv("COMSPEC")
	}
	c.reply(originID, &protocol.SystemInfoResp{Record: protocol.SystemInfo{
		Family:        family,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CurrentDir:    cwd,
		MainSeparator: sep,
		Username:      username,
		Shell:         shell,
	}})
}

func (c *Connection) handleVersion(originID string) {
	c.reply(originID, &protocol.VersionResp{Record: Version})
}

// nativeCapabilityKinds lists every request kind this package's Connection
// dispatch switch handles — the full native executor (§4.4.6,
// SPEC_FULL.md §4 supplemental feature #5). internal/sshexec reports a
// reduced list instead.
var nativeCapabilityKinds = []string{
	string(protocol.KindFileRead), string(protocol.KindFileReadText),
	string(protocol.KindFileWrite), string(protocol.KindFileAppend),
	string(protocol.KindDirRead), string(protocol.KindDirCreate),
	string(protocol.KindRemove), string(protocol.KindCopy), string(protocol.KindRename),
	string(protocol.KindExists), string(protocol.KindMetadata),
	string(protocol.KindWatch), string(protocol.KindUnwatch),
	string(protocol.KindSetPermissions),
	string(protocol.KindProcSpawn), string(protocol.KindProcStdin),
	string(protocol.KindProcKill), string(protocol.KindProcResizePty),
	string(protocol.KindSearchStart), string(protocol.KindSearchCancel),
	string(protocol.KindSystemInfo), string(protocol.KindVersion), string(protocol.KindCapabilities),
}

func (c *Connection) handleCapabilities(originID string) {
	c.reply(originID, &protocol.CapabilitiesResp{Kinds: nativeCapabilityKinds})
}
