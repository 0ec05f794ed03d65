package engine

import "errors"

var (
	// ErrNotInManifest indicates a path has no record in the manifest.
	ErrNotInManifest = errors.New("not in manifest")

	// ErrMtimeMismatch indicates the live mtime differs from the manifest.
	ErrMtimeMismatch = errors.New("mtime mismatch")

	// ErrSizeMismatch indicates the live size differs from the manifest.
	ErrSizeMismatch = errors.New("size mismatch")
)
