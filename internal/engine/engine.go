// Package engine provides the core restore logic: reconciling the live
// filesystem against a loaded manifest.
//
// The engine package sits between the CLI and the lower-level manifest,
// verify and fsops packages. It walks the manifest in file order, compares
// each live path with its record, repairs drift when running privileged and
// collects the report.
//
// Key components:
//   - Reconciler: directory-batched traversal, diff and ordered repair
//   - ConfigGuard: save/restore of config files and the symlink-clearing pass
//   - CheckFile: mtime and size check of a single installed file
package engine

import (
	"github.com/rs/zerolog"

	"github.com/zmanda/manifest-restore/internal/digest"
	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

// Options are the run options fixed at construction time.
type Options struct {
	// Privileged enables repairs. Without it the run only inspects and reports.
	Privileged bool

	// VerifyDigests runs the external digest check on regular installed files
	// whose size matches.
	VerifyDigests bool
}

// Reconciler restores one package's files to their manifest state.
type Reconciler struct {
	model    *manifest.Model
	fs       fsops.FS
	verifier digest.Verifier
	opts     Options
	log      zerolog.Logger
}

// New creates a Reconciler. verifier may be nil when digests are not checked.
func New(model *manifest.Model, fs fsops.FS, verifier digest.Verifier, opts Options, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		model:    model,
		fs:       fs,
		verifier: verifier,
		opts:     opts,
		log:      log,
	}
}
