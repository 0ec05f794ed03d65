// Package manifest holds the expected per-file state of one installed package.
//
// A Model is loaded once from a package header and is immutable afterwards.
// The header stores one array per attribute; Load folds those into a single
// ordered slice of Records so that every attribute of file n lives in
// Records[n]. Entry is a transient view over one record that derives paths,
// types and ids and performs the per-file filesystem operations.
package manifest

import (
	"github.com/zmanda/manifest-restore/internal/accounts"
	"github.com/zmanda/manifest-restore/internal/fsops"
)

// Flags is the per-file flag bitset recorded in the package header.
type Flags uint32

const (
	FlagConfig    Flags = 1 << 0
	FlagDoc       Flags = 1 << 1
	FlagMissingOK Flags = 1 << 3
	FlagNoReplace Flags = 1 << 4
	FlagGhost     Flags = 1 << 6
	FlagLicense   Flags = 1 << 7
	FlagReadme    Flags = 1 << 8
)

// Has reports whether every bit of f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Record is the expected state of one file.
type Record struct {
	BaseName   string
	DirIndex   int
	Flags      Flags
	Mode       uint32
	Size       int64
	LinkTarget string
	Owner      string
	Group      string
	Mtime      int64
	Digest     string
}

// Type returns the file type bits of the declared mode.
func (r *Record) Type() uint32 {
	return r.Mode & fsops.TypeMask
}

// Perm returns the permission bits of the declared mode.
func (r *Record) Perm() uint32 {
	return r.Mode & fsops.PermMask
}

// Installed reports whether the file is expected to physically exist.
func (r *Record) Installed() bool {
	return r.Flags&(FlagGhost|FlagMissingOK) == 0
}

// Model is the loaded manifest of one package.
type Model struct {
	// Name is the package name.
	Name string

	// Path is the resolved location of the manifest file.
	Path string

	// Dirs is the directory table; each entry ends in a slash.
	Dirs []string

	// Records holds one entry per file, in header order.
	Records []Record

	// DigestAlgo is the header's digest algorithm id (0 when absent).
	DigestAlgo int

	// DigestSuffix names the digest list written for stub installs.
	DigestSuffix string

	uids map[string]accounts.Resolution
	gids map[string]accounts.Resolution
}

// Len returns the number of files in the manifest.
func (m *Model) Len() int {
	return len(m.Records)
}

// FilePath returns the absolute path of file n.
func (m *Model) FilePath(n int) string {
	r := &m.Records[n]
	return m.Dirs[r.DirIndex] + r.BaseName
}

// Resolution returns how an owner or group name was resolved at load time.
func (m *Model) Resolution(kind accounts.Kind, name string) accounts.Resolution {
	if kind == accounts.Group {
		return m.gids[name]
	}
	return m.uids[name]
}

// UID returns the resolved id for an owner name.
func (m *Model) UID(owner string) int {
	return m.uids[owner].ID
}

// GID returns the resolved id for a group name.
func (m *Model) GID(group string) int {
	return m.gids[group].ID
}

// Lookup returns the index of the file whose absolute path is path.
func (m *Model) Lookup(path string) (int, bool) {
	for n := range m.Records {
		if m.FilePath(n) == path {
			return n, true
		}
	}
	return -1, false
}

// Entry returns a view over file n that performs I/O through fsys, or through
// dir by base name when dir is non-nil. The entry borrows dir and never
// closes it.
func (m *Model) Entry(n int, fsys fsops.FS, dir fsops.Dir) *Entry {
	return &Entry{model: m, n: n, rec: &m.Records[n], fs: fsys, dir: dir}
}

func digestSuffix(algo int) string {
	switch algo {
	case 1:
		return ".md5sums"
	case 8:
		return ".sha256sums"
	default:
		return ".digests"
	}
}
