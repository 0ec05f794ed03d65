package manifest

import (
	"errors"
	"io/fs"
	"time"

	"github.com/zmanda/manifest-restore/internal/fsops"
)

// Entry is a view over one manifest record. It is created per file and
// discarded; the directory handle it may carry is borrowed from the caller.
type Entry struct {
	model *Model
	n     int
	rec   *Record
	fs    fsops.FS
	dir   fsops.Dir
}

func (e *Entry) Index() int         { return e.n }
func (e *Entry) Record() *Record    { return e.rec }
func (e *Entry) Name() string       { return e.rec.BaseName }
func (e *Entry) DirIndex() int      { return e.rec.DirIndex }
func (e *Entry) DirPath() string    { return e.model.Dirs[e.rec.DirIndex] }
func (e *Entry) Path() string       { return e.DirPath() + e.rec.BaseName }
func (e *Entry) LinkTarget() string { return e.rec.LinkTarget }
func (e *Entry) FileType() uint32   { return e.rec.Type() }
func (e *Entry) Permission() uint32 { return e.rec.Perm() }
func (e *Entry) IsConfig() bool     { return e.rec.Flags.Has(FlagConfig) }
func (e *Entry) IsInstalled() bool  { return e.rec.Installed() }
func (e *Entry) IsSymlink() bool    { return e.rec.Type() == fsops.TypeSymlink }
func (e *Entry) IsRegular() bool    { return e.rec.Type() == fsops.TypeRegular }
func (e *Entry) IsDir() bool        { return e.rec.Type() == fsops.TypeDir }
func (e *Entry) UID() int           { return e.model.UID(e.rec.Owner) }
func (e *Entry) GID() int           { return e.model.GID(e.rec.Group) }

// ops picks the borrowed directory handle when present, else the full path.
func (e *Entry) ops() (fsops.Ops, string) {
	if e.dir != nil {
		return e.dir, e.rec.BaseName
	}
	return e.fs, e.Path()
}

// Exists reports whether the live path exists, without following symlinks.
func (e *Entry) Exists() (bool, error) {
	ops, name := e.ops()
	return fsops.Exists(ops, name)
}

// Lstat returns the observed state of the live path.
func (e *Entry) Lstat() (*fsops.FileStat, error) {
	ops, name := e.ops()
	return ops.Lstat(name)
}

// Readlink returns the live symlink target.
func (e *Entry) Readlink() (string, error) {
	ops, name := e.ops()
	return ops.Readlink(name)
}

// LinkStateMatches reports whether the live path is absent or has the
// declared file type.
func (e *Entry) LinkStateMatches() (bool, error) {
	st, err := e.Lstat()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return st.Type() == e.FileType(), nil
}

// ApplyOwnership sets the resolved owner and group on the path itself.
func (e *Entry) ApplyOwnership() error {
	ops, name := e.ops()
	return ops.Lchown(name, e.UID(), e.GID())
}

// RecreateSymlink replaces whatever is at the path with the declared symlink.
func (e *Entry) RecreateSymlink() error {
	if err := e.Remove(); err != nil {
		return err
	}
	ops, name := e.ops()
	return ops.Symlink(e.rec.LinkTarget, name)
}

// ApplyPermissions sets the declared permission bits. Declared symlinks are
// left alone; a live symlink fails with fsops.ErrSymlink.
func (e *Entry) ApplyPermissions() error {
	if e.IsSymlink() {
		return nil
	}
	ops, name := e.ops()
	return ops.Chmod(name, e.Permission())
}

// ApplyModTime sets the access time to atime and the modification time to
// the declared mtime.
func (e *Entry) ApplyModTime(atime time.Time) error {
	ops, name := e.ops()
	return ops.Lutimes(name, atime, time.Unix(e.rec.Mtime, 0))
}

// Remove deletes the live path; a path that is already gone is not an error.
func (e *Entry) Remove() error {
	ops, name := e.ops()
	if err := ops.Unlink(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// CreateEmpty creates an empty regular file with the declared permission bits.
func (e *Entry) CreateEmpty() error {
	ops, name := e.ops()
	return ops.CreateExclusive(name, e.Permission())
}
