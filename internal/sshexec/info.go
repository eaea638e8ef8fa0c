package sshexec

import (
	"github.com/farcall-dev/farcall/internal/protocol"
)

func (c *Conn) handleSystemInfo(originID string) {
	cwd, _ := c.runOneShot("pwd")
	osName, _ := c.runOneShot("uname -s")
	arch, _ := c.runOneShot("uname -m")
	user, _ := c.runOneShot("whoami")
	shell, _ := c.runOneShot("echo $SHELL")

	c.reply(originID, &protocol.SystemInfoResp{Record: protocol.SystemInfo{
		Family:        "unix",
		OS:            trimNewline(osName),
		Arch:          trimNewline(arch),
		CurrentDir:    trimNewline(cwd),
		MainSeparator: "/",
		Username:      trimNewline(user),
		Shell:         trimNewline(shell),
	}})
}

func (c *Conn) handleVersion(originID string) {
	c.reply(originID, &protocol.VersionResp{Record: protocol.VersionInfo{Major: 0, Minor: 1, Patch: 0}})
}

// runOneShot executes a short command in its own session and returns its
// stdout, used to answer system_info without keeping a shell
// session open.
func (c *Conn) runOneShot(cmd string) (string, error) {
	session, err := c.disp.ssh.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()
	out, err := session.Output(cmd)
	return string(out), err
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
