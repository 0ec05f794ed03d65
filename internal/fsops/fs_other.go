//go:build !linux

package fsops

import (
	"errors"
	"os"
	"time"
)

// ErrUnsupportedPlatform is returned by every RealFS operation on systems
// without the Linux *at syscalls.
var ErrUnsupportedPlatform = errors.New("filesystem repair is only supported on linux")

// RealFS implements FS on non-Linux systems by refusing every operation.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

func unsupported(op, path string) error {
	return &os.PathError{Op: op, Path: path, Err: ErrUnsupportedPlatform}
}

func (r *RealFS) Lstat(name string) (*FileStat, error)    { return nil, unsupported("lstat", name) }
func (r *RealFS) Readlink(name string) (string, error)    { return "", unsupported("readlink", name) }
func (r *RealFS) Lchown(name string, uid, gid int) error  { return unsupported("lchown", name) }
func (r *RealFS) Chmod(name string, perm uint32) error    { return unsupported("chmod", name) }
func (r *RealFS) Symlink(target, name string) error       { return unsupported("symlink", name) }
func (r *RealFS) Unlink(name string) error                { return unsupported("unlink", name) }
func (r *RealFS) OpenDir(path string) (Dir, error)        { return nil, unsupported("opendir", path) }
func (r *RealFS) MkdirAll(path string, perm uint32) error { return unsupported("mkdir", path) }
func (r *RealFS) Rename(oldpath, newpath string) error    { return unsupported("rename", oldpath) }
func (r *RealFS) Exists(path string) (bool, error)        { return false, unsupported("lstat", path) }
func (r *RealFS) IsRegular(path string) (bool, error)     { return false, unsupported("stat", path) }

func (r *RealFS) Lutimes(name string, atime, mtime time.Time) error {
	return unsupported("utimes", name)
}

func (r *RealFS) CreateExclusive(name string, perm uint32) error {
	return unsupported("create", name)
}
