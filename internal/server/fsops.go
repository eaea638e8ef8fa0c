package server

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/farcall-dev/farcall/internal/protocol"
)

func (c *Connection) handleFileRead(originID string, req *protocol.FileRead) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Blob{Data: data})
}

func (c *Connection) handleFileReadText(originID string, req *protocol.FileReadText) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Text{Data: string(data)})
}

func (c *Connection) handleFileWrite(originID string, req *protocol.FileWrite) {
	if err := os.WriteFile(req.Path, req.Data, 0o644); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Connection) handleFileAppend(originID string, req *protocol.FileAppend) {
	f, err := os.OpenFile(req.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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

func (c *Connection) handleDirCreate(originID string, req *protocol.DirCreate) {
	var err error
	if req.All {
		err = os.MkdirAll(req.Path, 0o755)
	} else {
		err = os.Mkdir(req.Path, 0o755)
	}
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

// handleDirRead implements spec §4.4.2's listing rules: canonicalize the
// root once, include it only when requested, bound traversal depth, and
// collect per-entry canonicalize failures instead of aborting the listing.
func (c *Connection) handleDirRead(originID string, req *protocol.DirRead) {
	root, err := filepath.Abs(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	if resolved, rerr := filepath.EvalSymlinks(root); rerr == nil {
		root = resolved
	}

	minDepth := 1
	if req.IncludeRoot {
		minDepth = 0
	}
	unlimited := req.Depth == 0
	maxDepth := int(req.Depth)

	var entries []protocol.DirEntry
	var errs []protocol.DirEntryError

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, protocol.DirEntryError{Path: path, Description: err.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		depth := 0
		if path != root {
			if rel, relErr := filepath.Rel(root, path); relErr == nil {
				depth = len(strings.Split(rel, string(filepath.Separator)))
			}
		}

		if !unlimited && depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if depth < minDepth {
			return nil
		}

		entryPath := path
		if req.Canonicalize && path != root {
			if resolved, rerr := filepath.EvalSymlinks(path); rerr != nil {
				errs = append(errs, protocol.DirEntryError{Path: path, Description: rerr.Error()})
			} else {
				entryPath = resolved
			}
		}
		if !req.Absolute && path != root {
			if rel, relErr := filepath.Rel(root, entryPath); relErr == nil {
				entryPath = rel
			}
		}

		entries = append(entries, protocol.DirEntry{
			Path:     entryPath,
			FileType: dirEntryFileType(d),
			Depth:    depth,
		})
		return nil
	})
	if walkErr != nil {
		c.replyErr(originID, walkErr)
		return
	}
	c.reply(originID, &protocol.DirEntries{Entries: entries, Errors: errs})
}

func dirEntryFileType(d fs.DirEntry) protocol.FileType {
	switch {
	case d.Type()&fs.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case d.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

func (c *Connection) handleRemove(originID string, req *protocol.Remove) {
	info, err := os.Lstat(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	if info.IsDir() {
		if req.Force {
			err = os.RemoveAll(req.Path)
		} else {
			err = os.Remove(req.Path)
		}
	} else {
		err = os.Remove(req.Path)
	}
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Connection) handleCopy(originID string, req *protocol.Copy) {
	if err := copyPath(req.Src, req.Dst); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

// copyPath recreates src at dst, walking directories with min_depth 1 and
// never following symlinks (§4.4.2): a symlink is refused like any other
// non-file/dir entry rather than copied or dereferenced.
func copyPath(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return &fs.PathError{Op: "copy", Path: src, Err: errors.New("refusing to copy a symlink")}
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.Type()&fs.ModeSymlink != 0 {
			return &fs.PathError{Op: "copy", Path: path, Err: errors.New("refusing to copy a symlink")}
		}
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return &fs.PathError{Op: "copy", Path: path, Err: errors.New("refusing to copy a non-regular file")}
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode.Perm())
}

func (c *Connection) handleRename(originID string, req *protocol.Rename) {
	if err := os.Rename(req.Src, req.Dst); err != nil {
		c.replyErr(originID, err)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func (c *Connection) handleExists(originID string, req *protocol.Exists) {
	_, err := os.Lstat(req.Path)
	if err == nil {
		c.reply(originID, &protocol.ExistsResp{Value: true})
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		c.reply(originID, &protocol.ExistsResp{Value: false})
		return
	}
	c.replyErr(originID, err)
}

func (c *Connection) handleMetadata(originID string, req *protocol.MetadataReq) {
	info, err := os.Lstat(req.Path)
	if err != nil {
		c.replyErr(originID, err)
		return
	}
	record := buildMetadata(req.Path, info)

	if req.Canonicalize {
		if resolved, rerr := filepath.EvalSymlinks(req.Path); rerr == nil {
			record.CanonicalizedPath = &resolved
		}
	}
	if req.ResolveFileType && record.FileType == protocol.FileTypeSymlink {
		if followed, ferr := os.Stat(req.Path); ferr == nil {
			record.FileType = fileTypeOfMode(followed.Mode())
		}
	}
	c.reply(originID, &protocol.MetadataResp{Record: record})
}

func buildMetadata(path string, info os.FileInfo) protocol.Metadata {
	mtime := info.ModTime().UnixMilli()
	m := protocol.Metadata{
		FileType:   fileTypeOfMode(info.Mode()),
		Len:        uint64(info.Size()),
		Readonly:   info.Mode().Perm()&0o222 == 0,
		ModifiedMs: &mtime,
	}
	if runtime.GOOS == "windows" {
		m.Windows = &protocol.WindowsAttributes{Archive: true}
		return m
	}
	perm := info.Mode().Perm()
	m.Unix = &protocol.UnixPermissions{
		OwnerRead: perm&0o400 != 0, OwnerWrite: perm&0o200 != 0, OwnerExec: perm&0o100 != 0,
		GroupRead: perm&0o040 != 0, GroupWrite: perm&0o020 != 0, GroupExec: perm&0o010 != 0,
		OtherRead: perm&0o004 != 0, OtherWrite: perm&0o002 != 0, OtherExec: perm&0o001 != 0,
	}
	return m
}

func fileTypeOfMode(mode os.FileMode) protocol.FileType {
	switch {
	case mode&os.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case mode.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

// handleSetPermissions applies req.Perms to Path, and (when Recursive) to
// every descendant, honoring FollowSymlinks/ExcludeSymlinks (§4.4.2). On
// non-unix platforms only the Readonly bit is meaningful.
func (c *Connection) handleSetPermissions(originID string, req *protocol.SetPermissions) {
	apply := func(path string) error {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		isSymlink := info.Mode()&os.ModeSymlink != 0
		if isSymlink {
			if req.ExcludeSymlinks {
				return nil
			}
			if !req.FollowSymlinks {
				return nil // chmod cannot target a symlink itself on most platforms
			}
		}
		return os.Chmod(path, unixModeFor(req.Perms, info.Mode()))
	}

	if !req.Recursive {
		if err := apply(req.Path); err != nil {
			c.replyErr(originID, err)
			return
		}
		c.reply(originID, &protocol.Ok{})
		return
	}

	walkErr := filepath.WalkDir(req.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return apply(path)
	})
	if walkErr != nil {
		c.replyErr(originID, walkErr)
		return
	}
	c.reply(originID, &protocol.Ok{})
}

func unixModeFor(perms protocol.Permissions, current os.FileMode) os.FileMode {
	if runtime.GOOS == "windows" || perms.Unix == nil {
		if perms.Readonly != nil {
			if *perms.Readonly {
				return current.Perm() &^ 0o222
			}
			return current.Perm() | 0o200
		}
		return current.Perm()
	}
	u := perms.Unix
	var mode os.FileMode
	if u.OwnerRead {
		mode |= 0o400
	}
	if u.OwnerWrite {
		mode |= 0o200
	}
	if u.OwnerExec {
		mode |= 0o100
	}
	if u.GroupRead {
		mode |= 0o040
	}
	if u.GroupWrite {
		mode |= 0o020
	}
	if u.GroupExec {
		mode |= 0o010
	}
	if u.OtherRead {
		mode |= 0o004
	}
	if u.OtherWrite {
		mode |= 0o002
	}
	if u.OtherExec {
		mode |= 0o001
	}
	return mode
}
