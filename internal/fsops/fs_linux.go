package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// atOps implements Ops on top of the *at family of syscalls. With fd set to
// AT_FDCWD names are full paths; with an open directory fd they are base names.
type atOps struct {
	fd     int
	prefix string
}

func (a atOps) pathErr(op, name string, err error) error {
	return &os.PathError{Op: op, Path: a.prefix + name, Err: err}
}

// Lstat returns file state without following symlinks.
func (a atOps) Lstat(name string) (*FileStat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(a.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, a.pathErr("lstat", name, err)
	}
	return &FileStat{
		Mode:  uint32(st.Mode),
		Size:  st.Size,
		UID:   st.Uid,
		GID:   st.Gid,
		Atime: time.Unix(st.Atim.Unix()),
		Mtime: time.Unix(st.Mtim.Unix()),
	}, nil
}

// Readlink reads the target of a symlink.
func (a atOps) Readlink(name string) (string, error) {
	for size := 256; ; size *= 2 {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(a.fd, name, buf)
		if err != nil {
			return "", a.pathErr("readlink", name, err)
		}
		if n < size {
			return string(buf[:n]), nil
		}
	}
}

// Lchown changes ownership of name itself, never of a symlink target.
func (a atOps) Lchown(name string, uid, gid int) error {
	if err := unix.Fchownat(a.fd, name, uid, gid, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return a.pathErr("lchown", name, err)
	}
	return nil
}

// Chmod sets the permission bits of name. A symlink is never followed; it
// fails with ErrSymlink.
func (a atOps) Chmod(name string, perm uint32) error {
	err := unix.Fchmodat(a.fd, name, perm&PermMask, unix.AT_SYMLINK_NOFOLLOW)
	if errors.Is(err, unix.EOPNOTSUPP) {
		// No fchmodat2, or name is a symlink.
		err = a.chmodNoFollow(name, perm)
	}
	if err != nil {
		return a.pathErr("chmod", name, err)
	}
	return nil
}

// chmodNoFollow pins name with O_PATH and changes the mode of the pinned
// inode through /proc/self/fd.
func (a atOps) chmodNoFollow(name string, perm uint32) error {
	fd, err := unix.Openat(a.fd, name, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer func() {
		_ = unix.Close(fd)
	}()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return ErrSymlink
	}
	return unix.Fchmodat(unix.AT_FDCWD, fmt.Sprintf("/proc/self/fd/%d", fd), perm&PermMask, 0)
}

// Symlink creates name as a symbolic link pointing at target.
func (a atOps) Symlink(target, name string) error {
	if err := unix.Symlinkat(target, a.fd, name); err != nil {
		return a.pathErr("symlink", name, err)
	}
	return nil
}

// Unlink removes a non-directory entry.
func (a atOps) Unlink(name string) error {
	if err := unix.Unlinkat(a.fd, name, 0); err != nil {
		return a.pathErr("unlink", name, err)
	}
	return nil
}

// Lutimes sets access and modification times without following symlinks.
func (a atOps) Lutimes(name string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(a.fd, name, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return a.pathErr("utimes", name, err)
	}
	return nil
}

// CreateExclusive creates an empty regular file, failing if name exists.
func (a atOps) CreateExclusive(name string, perm uint32) error {
	fd, err := unix.Openat(a.fd, name, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY|unix.O_CLOEXEC, perm&PermMask)
	if err != nil {
		return a.pathErr("create", name, err)
	}
	return unix.Close(fd)
}

// realDir is a Dir backed by an open directory file descriptor.
type realDir struct {
	atOps
}

// Path returns the directory path the handle was opened with.
func (d *realDir) Path() string {
	return d.prefix
}

// Close releases the directory descriptor.
func (d *realDir) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return &os.PathError{Op: "close", Path: d.prefix, Err: err}
	}
	return nil
}

// RealFS implements FS using actual OS operations.
type RealFS struct {
	atOps
}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{atOps: atOps{fd: unix.AT_FDCWD}}
}

// OpenDir opens a directory handle for batched per-file operations.
func (r *RealFS) OpenDir(path string) (Dir, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "opendir", Path: path, Err: err}
	}
	return &realDir{atOps: atOps{fd: fd, prefix: DirPath(path)}}, nil
}

// MkdirAll creates a directory and all parent directories.
func (r *RealFS) MkdirAll(path string, perm uint32) error {
	return os.MkdirAll(path, os.FileMode(perm&0o777))
}

// Rename renames oldpath to newpath, replacing newpath if it exists.
func (r *RealFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Exists checks if a path exists without following symlinks.
func (r *RealFS) Exists(path string) (bool, error) {
	return Exists(r, path)
}

// IsRegular reports whether path resolves, following symlinks, to a regular file.
func (r *RealFS) IsRegular(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
