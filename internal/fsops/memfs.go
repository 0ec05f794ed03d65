package fsops

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

// MemNode is a single entry in a MemFS.
type MemNode struct {
	Mode   uint32
	Size   int64
	UID    uint32
	GID    uint32
	Atime  time.Time
	Mtime  time.Time
	Target string
}

// MemFS implements FS in memory for testing. It records every mutating
// operation in Log and counts directory handle opens and closes.
type MemFS struct {
	nodes map[string]*MemNode
	fails map[string]error

	// Log lists mutating operations in the order they ran, as "op path".
	Log []string

	// Opened and Closed count OpenDir calls and Dir.Close calls.
	Opened int
	Closed int
}

// NewMemFS creates an empty MemFS containing only the root directory.
func NewMemFS() *MemFS {
	m := &MemFS{
		nodes: make(map[string]*MemNode),
		fails: make(map[string]error),
	}
	m.nodes["/"] = &MemNode{Mode: TypeDir | 0o755}
	return m
}

// AddDir adds a directory and any missing parents.
func (m *MemFS) AddDir(p string, perm uint32) *MemNode {
	p = path.Clean(p)
	if parent := path.Dir(p); parent != p {
		if _, ok := m.nodes[parent]; !ok {
			m.AddDir(parent, 0o755)
		}
	}
	n := &MemNode{Mode: TypeDir | perm&PermMask}
	m.nodes[p] = n
	return n
}

// AddFile adds a regular file, creating parent directories as needed.
func (m *MemFS) AddFile(p string, perm uint32, size int64) *MemNode {
	p = path.Clean(p)
	m.AddDir(path.Dir(p), 0o755)
	n := &MemNode{Mode: TypeRegular | perm&PermMask, Size: size}
	m.nodes[p] = n
	return n
}

// AddSymlink adds a symlink, creating parent directories as needed.
func (m *MemFS) AddSymlink(p, target string) *MemNode {
	p = path.Clean(p)
	m.AddDir(path.Dir(p), 0o755)
	n := &MemNode{Mode: TypeSymlink | 0o777, Target: target, Size: int64(len(target))}
	m.nodes[p] = n
	return n
}

// Node returns the entry at p, or nil.
func (m *MemFS) Node(p string) *MemNode {
	return m.nodes[path.Clean(p)]
}

// Paths returns every path in the filesystem in sorted order.
func (m *MemFS) Paths() []string {
	out := make([]string, 0, len(m.nodes))
	for p := range m.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FailOn makes the named operation on p return err. Operation names match
// the Log entries plus "lstat", "readlink" and "opendir".
func (m *MemFS) FailOn(op, p string, err error) {
	m.fails[op+" "+path.Clean(p)] = err
}

func (m *MemFS) check(op, p string) error {
	if err, ok := m.fails[op+" "+p]; ok {
		return &os.PathError{Op: op, Path: p, Err: err}
	}
	return nil
}

func (m *MemFS) record(op, p string) {
	m.Log = append(m.Log, op+" "+p)
}

func notExist(op, p string) error {
	return &os.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
}

func (m *MemFS) lstat(p string) (*FileStat, error) {
	if err := m.check("lstat", p); err != nil {
		return nil, err
	}
	n, ok := m.nodes[p]
	if !ok {
		return nil, notExist("lstat", p)
	}
	return &FileStat{Mode: n.Mode, Size: n.Size, UID: n.UID, GID: n.GID, Atime: n.Atime, Mtime: n.Mtime}, nil
}

func (m *MemFS) readlink(p string) (string, error) {
	if err := m.check("readlink", p); err != nil {
		return "", err
	}
	n, ok := m.nodes[p]
	if !ok {
		return "", notExist("readlink", p)
	}
	if n.Mode&TypeMask != TypeSymlink {
		return "", &os.PathError{Op: "readlink", Path: p, Err: fmt.Errorf("not a symlink")}
	}
	return n.Target, nil
}

func (m *MemFS) lchown(p string, uid, gid int) error {
	if err := m.check("chown", p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return notExist("chown", p)
	}
	m.record("chown", p)
	// Linux drops set-id bits when a regular file changes owner.
	if n.Mode&TypeMask == TypeRegular {
		n.Mode &^= 0o6000
	}
	if uid >= 0 {
		n.UID = uint32(uid)
	}
	if gid >= 0 {
		n.GID = uint32(gid)
	}
	return nil
}

// follow resolves one level of symlink, the way stat(2) does.
func (m *MemFS) follow(p string) (string, *MemNode, bool) {
	n, ok := m.nodes[p]
	if ok && n.Mode&TypeMask == TypeSymlink {
		target := n.Target
		if !path.IsAbs(target) {
			target = path.Join(path.Dir(p), target)
		}
		n, ok = m.nodes[target]
		return target, n, ok
	}
	return p, n, ok
}

func (m *MemFS) chmod(p string, perm uint32) error {
	if err := m.check("chmod", p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return notExist("chmod", p)
	}
	if n.Mode&TypeMask == TypeSymlink {
		return &os.PathError{Op: "chmod", Path: p, Err: ErrSymlink}
	}
	m.record("chmod", p)
	n.Mode = n.Mode&TypeMask | perm&PermMask
	return nil
}

func (m *MemFS) symlink(target, p string) error {
	if err := m.check("symlink", p); err != nil {
		return err
	}
	if _, ok := m.nodes[p]; ok {
		return &os.PathError{Op: "symlink", Path: p, Err: fs.ErrExist}
	}
	if _, ok := m.nodes[path.Dir(p)]; !ok {
		return notExist("symlink", p)
	}
	m.record("symlink", p)
	m.nodes[p] = &MemNode{Mode: TypeSymlink | 0o777, Target: target, Size: int64(len(target))}
	return nil
}

func (m *MemFS) unlink(p string) error {
	if err := m.check("unlink", p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return notExist("unlink", p)
	}
	if n.Mode&TypeMask == TypeDir {
		return &os.PathError{Op: "unlink", Path: p, Err: fmt.Errorf("is a directory")}
	}
	m.record("unlink", p)
	delete(m.nodes, p)
	return nil
}

func (m *MemFS) lutimes(p string, atime, mtime time.Time) error {
	if err := m.check("utimes", p); err != nil {
		return err
	}
	n, ok := m.nodes[p]
	if !ok {
		return notExist("utimes", p)
	}
	m.record("utimes", p)
	n.Atime = atime
	n.Mtime = mtime
	return nil
}

func (m *MemFS) create(p string, perm uint32) error {
	if err := m.check("create", p); err != nil {
		return err
	}
	if _, ok := m.nodes[p]; ok {
		return &os.PathError{Op: "create", Path: p, Err: fs.ErrExist}
	}
	if _, ok := m.nodes[path.Dir(p)]; !ok {
		return notExist("create", p)
	}
	m.record("create", p)
	m.nodes[p] = &MemNode{Mode: TypeRegular | perm&PermMask}
	return nil
}

// Lstat returns file state without following symlinks.
func (m *MemFS) Lstat(name string) (*FileStat, error) { return m.lstat(path.Clean(name)) }

// Readlink reads the target of a symlink.
func (m *MemFS) Readlink(name string) (string, error) { return m.readlink(path.Clean(name)) }

// Lchown changes ownership of name itself.
func (m *MemFS) Lchown(name string, uid, gid int) error { return m.lchown(path.Clean(name), uid, gid) }

// Chmod sets the permission bits of name.
func (m *MemFS) Chmod(name string, perm uint32) error { return m.chmod(path.Clean(name), perm) }

// Symlink creates name as a symbolic link pointing at target.
func (m *MemFS) Symlink(target, name string) error { return m.symlink(target, path.Clean(name)) }

// Unlink removes a non-directory entry.
func (m *MemFS) Unlink(name string) error { return m.unlink(path.Clean(name)) }

// Lutimes sets access and modification times without following symlinks.
func (m *MemFS) Lutimes(name string, atime, mtime time.Time) error {
	return m.lutimes(path.Clean(name), atime, mtime)
}

// CreateExclusive creates an empty regular file, failing if name exists.
func (m *MemFS) CreateExclusive(name string, perm uint32) error {
	return m.create(path.Clean(name), perm)
}

// OpenDir opens a directory handle.
func (m *MemFS) OpenDir(p string) (Dir, error) {
	clean := path.Clean(p)
	if err := m.check("opendir", clean); err != nil {
		return nil, err
	}
	n, ok := m.nodes[clean]
	if !ok {
		return nil, notExist("opendir", clean)
	}
	if n.Mode&TypeMask != TypeDir {
		return nil, &os.PathError{Op: "opendir", Path: clean, Err: fmt.Errorf("not a directory")}
	}
	m.Opened++
	return &memDir{fs: m, prefix: DirPath(clean)}, nil
}

// MkdirAll creates a directory and all parent directories.
func (m *MemFS) MkdirAll(p string, perm uint32) error {
	clean := path.Clean(p)
	if err := m.check("mkdir", clean); err != nil {
		return err
	}
	if n, ok := m.nodes[clean]; ok {
		if n.Mode&TypeMask != TypeDir {
			return &os.PathError{Op: "mkdir", Path: clean, Err: fs.ErrExist}
		}
		return nil
	}
	m.record("mkdir", clean)
	m.AddDir(clean, perm)
	return nil
}

// Rename renames oldpath to newpath, replacing newpath if it exists.
func (m *MemFS) Rename(oldpath, newpath string) error {
	oldpath, newpath = path.Clean(oldpath), path.Clean(newpath)
	if err := m.check("rename", oldpath); err != nil {
		return err
	}
	n, ok := m.nodes[oldpath]
	if !ok {
		return notExist("rename", oldpath)
	}
	m.record("rename", oldpath)
	delete(m.nodes, oldpath)
	m.nodes[newpath] = n
	return nil
}

// Exists checks if a path exists without following symlinks.
func (m *MemFS) Exists(p string) (bool, error) {
	return Exists(m, p)
}

// IsRegular reports whether p resolves, following symlinks, to a regular file.
func (m *MemFS) IsRegular(p string) (bool, error) {
	_, n, ok := m.follow(path.Clean(p))
	if !ok {
		return false, nil
	}
	return n.Mode&TypeMask == TypeRegular, nil
}

// memDir is a Dir over a MemFS; names are joined to the directory prefix.
type memDir struct {
	fs     *MemFS
	prefix string
	closed bool
}

func (d *memDir) join(name string) string {
	return path.Clean(d.prefix + strings.TrimPrefix(name, "/"))
}

func (d *memDir) Path() string { return d.prefix }

func (d *memDir) Close() error {
	if !d.closed {
		d.closed = true
		d.fs.Closed++
	}
	return nil
}

func (d *memDir) Lstat(name string) (*FileStat, error) { return d.fs.lstat(d.join(name)) }
func (d *memDir) Readlink(name string) (string, error) { return d.fs.readlink(d.join(name)) }
func (d *memDir) Lchown(name string, uid, gid int) error {
	return d.fs.lchown(d.join(name), uid, gid)
}
func (d *memDir) Chmod(name string, perm uint32) error { return d.fs.chmod(d.join(name), perm) }
func (d *memDir) Symlink(target, name string) error    { return d.fs.symlink(target, d.join(name)) }
func (d *memDir) Unlink(name string) error             { return d.fs.unlink(d.join(name)) }
func (d *memDir) Lutimes(name string, atime, mtime time.Time) error {
	return d.fs.lutimes(d.join(name), atime, mtime)
}
func (d *memDir) CreateExclusive(name string, perm uint32) error {
	return d.fs.create(d.join(name), perm)
}
