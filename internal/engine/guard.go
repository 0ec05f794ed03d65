package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

// SaveSuffix is appended to a config file path to form its saved copy.
const SaveSuffix = ".cfgsave"

// ConfigGuard protects user-modified config files across a package upgrade
// and clears stale symlinks before files are laid down.
type ConfigGuard struct {
	fs  fsops.FS
	log zerolog.Logger
}

// NewConfigGuard creates a new ConfigGuard.
func NewConfigGuard(fs fsops.FS, log zerolog.Logger) *ConfigGuard {
	return &ConfigGuard{fs: fs, log: log}
}

// Save moves every live config file aside to its saved copy. The rename
// replaces any earlier saved copy in one step. It returns the number of
// files saved.
func (g *ConfigGuard) Save(m *manifest.Model) int {
	saved := 0
	for n := range m.Records {
		if !m.Records[n].Flags.Has(manifest.FlagConfig) {
			continue
		}
		live := m.FilePath(n)
		ok, err := g.fs.IsRegular(live)
		if err != nil {
			g.log.Warn().Err(err).Str("path", live).Msg("cannot inspect config file")
			continue
		}
		if !ok {
			g.log.Info().Str("path", live).Msg("no previous config file")
			continue
		}
		if err := g.fs.Rename(live, live+SaveSuffix); err != nil {
			g.log.Warn().Err(err).Str("path", live).Msg("failed to save config file")
			continue
		}
		g.log.Info().Str("path", live+SaveSuffix).Msg("preserved config file")
		saved++
	}
	return saved
}

// Restore moves every saved config copy back over its live path. Files with
// no saved copy are left untouched. It returns the number of files restored.
func (g *ConfigGuard) Restore(m *manifest.Model) int {
	restored := 0
	for n := range m.Records {
		if !m.Records[n].Flags.Has(manifest.FlagConfig) {
			continue
		}
		live := m.FilePath(n)
		saved := live + SaveSuffix
		ok, err := g.fs.IsRegular(saved)
		if err != nil {
			g.log.Warn().Err(err).Str("path", saved).Msg("cannot inspect saved config file")
			continue
		}
		if !ok {
			g.log.Info().Str("path", live).Msg("no saved config file")
			continue
		}
		if err := g.fs.Rename(saved, live); err != nil {
			g.log.Warn().Err(err).Str("path", live).Msg("failed to restore config file")
			continue
		}
		g.log.Info().Str("path", live).Str("from", saved).Msg("restored config file")
		restored++
	}
	return restored
}

// ClearSymlinks prepares the tree for the main pass. Paths whose live type
// differs from the manifest are renamed aside with a pid-qualified suffix;
// symlinks of the right type are removed so they can be recreated. The first
// failure aborts the pass.
func (g *ConfigGuard) ClearSymlinks(m *manifest.Model, pid int) error {
	for n := range m.Records {
		e := m.Entry(n, g.fs, nil)
		if err := g.clearOne(e, pid); err != nil {
			g.log.Error().Err(err).Str("path", e.Path()).Msg("failed to clear path")
			return fmt.Errorf("failed to clear %s: %w", e.Path(), err)
		}
	}
	return nil
}

func (g *ConfigGuard) clearOne(e *manifest.Entry, pid int) error {
	matches, err := e.LinkStateMatches()
	if err != nil {
		return err
	}
	if !matches {
		aside := fmt.Sprintf("%s.%d%s", e.Path(), pid, SaveSuffix)
		if err := g.fs.Rename(e.Path(), aside); err != nil {
			return err
		}
		g.log.Info().Str("path", e.Path()).Str("to", aside).Msg("moved mismatched path aside")
		return nil
	}
	if e.IsSymlink() {
		return e.Remove()
	}
	return nil
}
