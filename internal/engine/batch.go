package engine

import (
	"github.com/rs/zerolog"

	"github.com/zmanda/manifest-restore/internal/fsops"
)

// dirBatch owns the directory handle shared by a run of consecutive manifest
// entries with the same directory index.
type dirBatch struct {
	fs     fsops.FS
	log    zerolog.Logger
	index  int
	dir    fsops.Dir
	failed bool
}

func newDirBatch(fs fsops.FS, log zerolog.Logger) *dirBatch {
	return &dirBatch{fs: fs, log: log, index: -1}
}

// enter switches the batch to directory index, opening path when the index
// changes. It returns false while the current directory could not be opened;
// the failure is logged once per batch.
func (b *dirBatch) enter(index int, path string) (fsops.Dir, bool) {
	if index == b.index {
		return b.dir, !b.failed
	}
	b.close()
	b.index = index

	dir, err := b.fs.OpenDir(path)
	if err != nil {
		b.failed = true
		b.log.Warn().
			Err(err).
			Str("status", "d-error").
			Str("dir", path).
			Msg("cannot open directory, skipping its files")
		return nil, false
	}
	b.dir = dir
	b.failed = false
	return dir, true
}

// close releases the current handle, if any.
func (b *dirBatch) close() {
	if b.dir == nil {
		return
	}
	if err := b.dir.Close(); err != nil {
		b.log.Debug().Err(err).Str("dir", b.dir.Path()).Msg("failed to close directory")
	}
	b.dir = nil
}
