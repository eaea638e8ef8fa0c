package sshexec

import (
	"io"
	"os"
	"path/filepath"

	"github.com/farcall-dev/farcall/internal/protocol"
)

func (c *Conn) handleFileRead(originID string, req *protocol.FileRead) {
	f, err := c.disp.sftp.Open(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Blob{Data: data})
}

func (c *Conn) handleFileReadText(originID string, req *protocol.FileReadText) {
	f, err := c.disp.sftp.Open(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Text{Data: string(data)})
}

func (c *Conn) handleFileWrite(originID string, req *protocol.FileWrite) {
	f, err := c.disp.sftp.Create(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(req.Data); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Conn) handleFileAppend(originID string, req *protocol.FileAppend) {
	f, err := c.disp.sftp.OpenFile(req.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(req.Data); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Conn) handleDirCreate(originID string, req *protocol.DirCreate) {
	var err error
	if req.All {
		err = c.disp.sftp.MkdirAll(req.Path)
	} else {
		err = c.disp.sftp.Mkdir(req.Path)
	}
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

// handleDirRead lists a remote directory tree over SFTP, recursing
// by hand since the SFTP protocol exposes no server-side walk primitive —
// see internal/search for the equivalent local-filesystem walk this mirrors
// in spirit.
func (c *Conn) handleDirRead(originID string, req *protocol.DirRead) {
	root := req.Path
	unlimited := req.Depth == 0
	maxDepth := int(req.Depth)

	var entries []protocol.DirEntry
	var errs []protocol.DirEntryError

	if req.IncludeRoot {
		if info, err := c.disp.sftp.Stat(root); err == nil {
			entries = append(entries, protocol.DirEntry{
				Path:     root,
				FileType: sftpFileType(info),
				Depth:    0,
			})
		} else {
			errs = append(errs, protocol.DirEntryError{Path: root, Description: err.Error()})
		}
	}

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		list, err := c.disp.sftp.ReadDir(dir)
		if err != nil {
			errs = append(errs, protocol.DirEntryError{Path: dir, Description: err.Error()})
			return
		}
		for _, info := range list {
			full := filepath.Join(dir, info.Name())
			entries = append(entries, protocol.DirEntry{
				Path:     full,
				FileType: sftpFileType(info),
				Depth:    depth,
			})
			if info.IsDir() && (unlimited || depth < maxDepth) {
				walk(full, depth+1)
			}
		}
	}
	walk(root, 1)

	c.reply(originID, &protocol.DirEntries{Entries: entries, Errors: errs})
}

func sftpFileType(info os.FileInfo) protocol.FileType {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case info.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

func (c *Conn) handleRemove(originID string, req *protocol.Remove) {
	info, err := c.disp.sftp.Lstat(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	if info.IsDir() && req.Force {
		err = c.disp.sftp.RemoveAll(req.Path)
	} else if info.IsDir() {
		err = c.disp.sftp.RemoveDirectory(req.Path)
	} else {
		err = c.disp.sftp.Remove(req.Path)
	}
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

// handleCopy streams src to dst through this process, since SFTP has no
// server-side copy verb. Symlinks are refused, matching the native
// executor's refusal in internal/server/fsops.go.
func (c *Conn) handleCopy(originID string, req *protocol.Copy) {
	info, err := c.disp.sftp.Lstat(req.Src)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	if info.Mode()&os.ModeSymlink != 0 {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: "refusing to copy a symlink"})
		return
	}
	if info.IsDir() {
		c.replyErr(originID, &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: "recursive directory copy is not supported over SFTP"})
		return
	}
	src, err := c.disp.sftp.Open(req.Src)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	defer src.Close()
	dst, err := c.disp.sftp.Create(req.Dst)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Conn) handleRename(originID string, req *protocol.Rename) {
	if err := c.disp.sftp.Rename(req.Src, req.Dst); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Conn) handleExists(originID string, req *protocol.Exists) {
	_, err := c.disp.sftp.Lstat(req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			c.reply(originID, &protocol.ExistsResp{Value: false})
			return
		}
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.ExistsResp{Value: true})
}

func (c *Conn) handleMetadata(originID string, req *protocol.MetadataReq) {
	info, err := c.disp.sftp.Lstat(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	ft := sftpFileType(info)
	if req.ResolveFileType && ft == protocol.FileTypeSymlink {
		if target, err := c.disp.sftp.Stat(req.Path); err == nil {
			ft = sftpFileType(target)
		}
	}
	m := protocol.Metadata{
		FileType: ft,
		Len:      uint64(info.Size()),
		Readonly: info.Mode().Perm()&0o200 == 0,
	}
	modMs := info.ModTime().UnixMilli()
	m.ModifiedMs = &modMs
	if req.Canonicalize {
		abs := req.Path
		m.CanonicalizedPath = &abs
	}
	// SFTP exposes only POSIX permission bits — no windows substructure is
	// ever produced (spec §3, "both may be absent... e.g. the
	// SSH-tunnelled executor").
	mode := info.Mode().Perm()
	m.Unix = &protocol.UnixPermissions{
		OwnerRead:  mode&0o400 != 0,
		OwnerWrite: mode&0o200 != 0,
		OwnerExec:  mode&0o100 != 0,
		GroupRead:  mode&0o040 != 0,
		GroupWrite: mode&0o020 != 0,
		GroupExec:  mode&0o010 != 0,
		OtherRead:  mode&0o004 != 0,
		OtherWrite: mode&0o002 != 0,
		OtherExec:  mode&0o001 != 0,
	}
	c.reply(originID, &protocol.MetadataResp{Record: m})
}

func (c *Conn) handleSetPermissions(originID string, req *protocol.SetPermissions) {
	info, err := c.disp.sftp.Lstat(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	mode := info.Mode().Perm()
	if req.Perms.Unix != nil {
		mode = unixModeFrom(*req.Perms.Unix)
	} else if req.Perms.Readonly != nil {
		if *req.Perms.Readonly {
			mode &^= 0o222
		} else {
			mode |= 0o200
		}
	}
	if err := c.disp.sftp.Chmod(req.Path, mode); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func unixModeFrom(p protocol.UnixPermissions) os.FileMode {
	var m os.FileMode
	set := func(bit bool, mask os.FileMode) {
		if bit {
			m |= mask
		}
	}
	set(p.OwnerRead, 0o400)
	set(p.OwnerWrite, 0o200)
	set(p.OwnerExec, 0o100)
	set(p.GroupRead, 0o040)
	set(p.GroupWrite, 0o020)
	set(p.GroupExec, 0o010)
	set(p.OtherRead, 0o004)
	set(p.OtherWrite, 0o002)
	set(p.OtherExec, 0o001)
	return m
}
