// Package fsops provides the filesystem operations used to inspect and repair
// installed package files.
//
// Every filesystem access made while reconciling a manifest goes through the
// FS and Dir interfaces. A Dir is an open directory handle; operations on it
// take a base name and are resolved relative to the handle, which avoids
// re-walking the directory path for every file in a directory batch.
//
// Key features:
//   - Symlink-safe operations (lstat, lchown, lutimes never follow links)
//   - Raw st_mode bits so manifest modes compare without translation
//   - Testable via the FS interface and the in-memory MemFS
package fsops

import (
	"errors"
	"io/fs"
	"strings"
	"time"
)

// ErrSymlink indicates an operation refused to act through a symlink.
var ErrSymlink = errors.New("refusing to follow symlink")

// Mode bit masks and file types, matching the st_mode layout recorded in
// package headers.
const (
	TypeMask uint32 = 0o170000
	PermMask uint32 = 0o7777

	TypeDir     uint32 = 0o040000
	TypeRegular uint32 = 0o100000
	TypeSymlink uint32 = 0o120000
)

// FileStat is the observed state of a path, taken without following symlinks.
type FileStat struct {
	Mode  uint32
	Size  int64
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
}

// Type returns the file type bits of the observed mode.
func (s *FileStat) Type() uint32 {
	return s.Mode & TypeMask
}

// Perm returns the permission bits of the observed mode.
func (s *FileStat) Perm() uint32 {
	return s.Mode & PermMask
}

// Ops are the per-file operations shared by FS (full paths) and Dir (base
// names relative to the open directory).
type Ops interface {
	// Lstat returns file state without following symlinks.
	Lstat(name string) (*FileStat, error)

	// Readlink reads the target of a symlink.
	Readlink(name string) (string, error)

	// Lchown changes ownership of name itself, never of a symlink target.
	Lchown(name string, uid, gid int) error

	// Chmod sets the permission bits of name. It never follows a symlink
	// and fails with ErrSymlink when name is one.
	Chmod(name string, perm uint32) error

	// Symlink creates name as a symbolic link pointing at target.
	Symlink(target, name string) error

	// Unlink removes a non-directory entry.
	Unlink(name string) error

	// Lutimes sets access and modification times without following symlinks.
	Lutimes(name string, atime, mtime time.Time) error

	// CreateExclusive creates an empty regular file, failing if name exists.
	CreateExclusive(name string, perm uint32) error
}

// Dir is an open directory handle.
type Dir interface {
	Ops

	// Path returns the directory path the handle was opened with.
	Path() string

	// Close releases the handle.
	Close() error
}

// FS provides an abstraction for filesystem operations.
// All filesystem mutations made during a restore must go through this interface.
type FS interface {
	Ops

	// OpenDir opens a directory handle for batched per-file operations.
	OpenDir(path string) (Dir, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm uint32) error

	// Rename renames oldpath to newpath, replacing newpath if it exists.
	Rename(oldpath, newpath string) error

	// Exists checks if a path exists without following symlinks.
	Exists(path string) (bool, error)

	// IsRegular reports whether path resolves, following symlinks, to a regular file.
	IsRegular(path string) (bool, error)
}

// Exists reports whether name exists on ops without following symlinks.
func Exists(ops Ops, name string) (bool, error) {
	_, err := ops.Lstat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// DirPath normalizes a directory path to carry exactly one trailing slash,
// the form directory names take in package headers.
func DirPath(path string) string {
	return strings.TrimRight(path, "/") + "/"
}
