// Package config manages manifest-restore configuration and filesystem paths.
//
// The only configurable location is the trusted manifest directory. It
// defaults to the directory the installer writes manifests to and can be
// overridden with the MANIFEST_RESTORE_DIR environment variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultManifestDir is where installers place package manifests.
const DefaultManifestDir = "/opt/zmanda/amanda/pkg-manifests"

// Paths contains all the filesystem paths used by manifest-restore.
type Paths struct {
	// Manifests is the trusted directory manifests must be read from
	Manifests string
}

// DefaultPaths returns the default paths for manifest-restore.
// Paths can be overridden with environment variables:
// - MANIFEST_RESTORE_DIR: Override the trusted manifest directory
func DefaultPaths() (*Paths, error) {
	dir := os.Getenv("MANIFEST_RESTORE_DIR")
	if dir == "" {
		dir = DefaultManifestDir
	}
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("manifest directory must be absolute, got %q", dir)
	}

	return &Paths{
		Manifests: filepath.Clean(dir),
	}, nil
}

// ManifestCandidates returns the manifest files to try for a package name,
// in order: the installed manifest, then the one kept for pre-uninstall.
func (p *Paths) ManifestCandidates(pkg string) []string {
	base := filepath.Join(p.Manifests, pkg+".manifest")
	return []string{base, base + ".preun"}
}
