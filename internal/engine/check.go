package engine

import (
	"fmt"
	"path/filepath"

	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

// CheckFile compares the live mtime and size of path with its manifest
// record. The mtime is checked first.
func CheckFile(m *manifest.Model, fsys fsops.FS, path string) error {
	path = filepath.Clean(path)
	n, ok := m.Lookup(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInManifest, path)
	}

	rec := &m.Records[n]
	st, err := m.Entry(n, fsys, nil).Lstat()
	if err != nil {
		return err
	}
	if st.Mtime.Unix() != rec.Mtime {
		return fmt.Errorf("%w: %s: have %d, want %d", ErrMtimeMismatch, path, st.Mtime.Unix(), rec.Mtime)
	}
	if st.Size != rec.Size {
		return fmt.Errorf("%w: %s: have %d, want %d", ErrSizeMismatch, path, st.Size, rec.Size)
	}
	return nil
}
