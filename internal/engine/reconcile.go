package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
	"github.com/zmanda/manifest-restore/internal/verify"
)

const setIDBits = 0o6000

// Run reconciles every manifest entry in file order and returns the report.
// Per-file problems are logged and never stop the run.
func (r *Reconciler) Run(ctx context.Context) *Report {
	report := &Report{}
	batch := newDirBatch(r.fs, r.log)
	defer batch.close()

	for n := range r.model.Records {
		rec := &r.model.Records[n]
		dir, ok := batch.enter(rec.DirIndex, r.model.Dirs[rec.DirIndex])
		if !ok {
			continue
		}
		e := r.model.Entry(n, r.fs, dir)
		if res, ok := r.reconcile(ctx, e); ok {
			report.Results = append(report.Results, res)
		}
	}

	r.log.Debug().
		Str("package", r.model.Name).
		Int("files", r.model.Len()).
		Int("inspected", len(report.Results)).
		Msg("reconcile finished")
	return report
}

// reconcile inspects and repairs one entry. It returns false when the entry
// produced no diff code.
func (r *Reconciler) reconcile(ctx context.Context, e *manifest.Entry) (Result, bool) {
	if e.IsRegular() && !e.IsInstalled() && e.Record().Size == 0 {
		exists, err := e.Exists()
		if err == nil && !exists {
			r.precreate(e)
			return Result{}, false
		}
	}

	st, err := e.Lstat()
	if errors.Is(err, fs.ErrNotExist) {
		r.handleMissing(e)
		return Result{}, false
	}
	if err != nil {
		r.handleStatError(e, err)
		return Result{}, false
	}

	code := verify.Encode(e, st)
	if r.opts.Privileged {
		if err := r.repair(e, code, st); err != nil {
			r.log.Warn().Err(err).Str("status", "failed").Str("path", e.Path()).Msg("repair failed")
		}
	}
	if r.opts.VerifyDigests && code.Digest == verify.DigestUnverified {
		code.Digest = r.checkDigest(ctx, e)
	}

	return Result{Path: e.Path(), Code: code, Class: classOf(e)}, true
}

// precreate creates the empty placeholder for an absent file that is not
// expected to be installed.
func (r *Reconciler) precreate(e *manifest.Entry) {
	err := e.CreateEmpty()
	if err == nil {
		err = e.ApplyOwnership()
	}
	if err == nil {
		err = e.ApplyPermissions()
	}
	if err != nil {
		r.log.Warn().Err(err).Str("status", "error").Str("path", e.Path()).Msg("failed to create placeholder")
		return
	}
	r.log.Debug().Str("status", "new-file").Str("path", e.Path()).Msg("created placeholder")
}

func (r *Reconciler) handleMissing(e *manifest.Entry) {
	switch {
	case r.opts.Privileged && e.IsSymlink():
		if err := r.recreateSymlink(e); err != nil {
			r.log.Warn().Err(err).Str("status", "error").Str("path", e.Path()).Msg("failed to create symlink")
			return
		}
		if e.IsInstalled() {
			r.log.Info().
				Str("status", "new-sym").
				Str("path", e.Path()).
				Str("target", e.LinkTarget()).
				Msg("created symlink")
		}
	case r.opts.Privileged && e.IsDir():
		err := r.fs.MkdirAll(e.Path(), e.Permission())
		if err == nil {
			err = e.ApplyOwnership()
		}
		if err == nil {
			err = e.ApplyPermissions()
		}
		if err != nil {
			r.log.Warn().Err(err).Str("status", "error").Str("path", e.Path()).Msg("failed to create directory")
			return
		}
		r.log.Info().Str("status", "new-dir").Str("path", e.Path()).Msg("created directory")
	case e.IsInstalled():
		r.log.Warn().Str("status", "missing").Str("path", e.Path()).Msg("file missing")
	}
}

func (r *Reconciler) handleStatError(e *manifest.Entry, statErr error) {
	if r.opts.Privileged && e.IsSymlink() {
		if err := r.recreateSymlink(e); err != nil {
			r.log.Warn().Err(err).Str("status", "error").Str("path", e.Path()).Msg("failed to recreate symlink")
			return
		}
		r.log.Warn().
			Err(statErr).
			Str("status", "io-sym").
			Str("path", e.Path()).
			Str("target", e.LinkTarget()).
			Msg("recreated unreadable symlink")
		return
	}
	r.log.Warn().Err(statErr).Str("status", "error").Str("path", e.Path()).Msg("cannot stat file")
}

// repair applies the fixes a code calls for. Ownership goes first because
// chown may clear set-id bits that the mode fix then restores; mtime goes
// last. The first failure stops the remaining steps for this entry.
func (r *Reconciler) repair(e *manifest.Entry, code verify.Code, st *fsops.FileStat) error {
	fixMode := code.Mode
	if code.NeedsOwnership() {
		if err := e.ApplyOwnership(); err != nil {
			return fmt.Errorf("failed to set ownership: %w", err)
		}
		// chown dropped any set-id bits the manifest wants back.
		fixMode = fixMode || e.Permission()&setIDBits != 0
	}
	if code.Link {
		if err := r.recreateSymlink(e); err != nil {
			return fmt.Errorf("failed to recreate symlink: %w", err)
		}
		r.log.Info().
			Str("status", "fix-sym").
			Str("path", e.Path()).
			Str("target", e.LinkTarget()).
			Msg("repointed symlink")
	}
	if fixMode && st.Type() == fsops.TypeSymlink && !e.IsSymlink() {
		// chmod would land on whatever the live link points at.
		r.log.Warn().Str("status", "type").Str("path", e.Path()).Msg("live path is a symlink, leaving mode alone")
		fixMode = false
	}
	if fixMode {
		if err := e.ApplyPermissions(); err != nil {
			return fmt.Errorf("failed to set mode: %w", err)
		}
	}
	if code.Mtime {
		if err := e.ApplyModTime(st.Atime); err != nil {
			return fmt.Errorf("failed to set mtime: %w", err)
		}
	}
	return nil
}

// recreateSymlink lays down the declared symlink and gives it the declared
// owner, since a new link belongs to the creating process.
func (r *Reconciler) recreateSymlink(e *manifest.Entry) error {
	if err := e.RecreateSymlink(); err != nil {
		return err
	}
	return e.ApplyOwnership()
}

// checkDigest runs the external digest check for a size-matching regular file.
func (r *Reconciler) checkDigest(ctx context.Context, e *manifest.Entry) verify.DigestState {
	rec := e.Record()
	if r.verifier == nil || rec.Digest == "" {
		return verify.DigestUnverified
	}
	ok, err := r.verifier.Verify(ctx, r.model.DigestAlgo, rec.Digest, e.Path())
	if err != nil {
		r.log.Warn().Err(err).Str("status", "digest").Str("path", e.Path()).Msg("digest check failed")
		return verify.DigestUnverified
	}
	if !ok {
		return verify.DigestMismatch
	}
	return verify.DigestVerified
}
