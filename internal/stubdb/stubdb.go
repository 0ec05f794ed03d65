// Package stubdb registers a package's files with dpkg when the package was
// installed on Debian as a stub: a .deb whose only payload is the manifest.
//
// A stub is recognized by its dpkg file list, which must be an unbroken chain
// of directories from / down to the manifest path and nothing else. When that
// holds, every manifest path is appended to the list, config files are
// written to the conffiles list and digests to the digest list, so dpkg sees
// the files the manifest restored.
package stubdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/zmanda/manifest-restore/internal/execx"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

// ErrNotStub indicates the package is not a dpkg stub install.
var ErrNotStub = errors.New("no stub install found")

// Appender appends manifest files to dpkg's info database.
type Appender struct {
	fs     afero.Fs
	runner execx.Runner
	log    zerolog.Logger
}

// NewAppender creates a new Appender.
func NewAppender(fs afero.Fs, runner execx.Runner, log zerolog.Logger) *Appender {
	return &Appender{fs: fs, runner: runner, log: log}
}

// Append registers every file of m with dpkg if m was installed as a stub.
func (a *Appender) Append(ctx context.Context, m *manifest.Model) error {
	list, err := a.listPath(ctx, m.Name)
	if err != nil {
		return err
	}
	if err := a.detect(list, m.Path); err != nil {
		return err
	}

	prefix := strings.TrimSuffix(list, ".list")
	conffiles := prefix + ".conffiles"
	digests := prefix + m.DigestSuffix

	var paths, configs, sums []string
	for n := range m.Records {
		path := m.FilePath(n)
		rec := &m.Records[n]
		paths = append(paths, path)
		if rec.Flags.Has(manifest.FlagConfig) {
			configs = append(configs, path)
		}
		if rec.Digest != "" {
			sums = append(sums, rec.Digest+"  "+strings.TrimPrefix(path, "/"))
		}
	}

	if err := a.writeLines(list, os.O_APPEND|os.O_WRONLY, paths); err != nil {
		return err
	}
	if err := a.writeLines(conffiles, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, configs); err != nil {
		return err
	}
	if err := a.writeLines(digests, os.O_CREATE|os.O_APPEND|os.O_WRONLY, sums); err != nil {
		return err
	}

	a.log.Info().
		Str("package", m.Name).
		Str("list", list).
		Int("files", len(paths)).
		Int("conffiles", len(configs)).
		Msg("registered stub install with dpkg")
	return nil
}

// listPath derives the package's dpkg .list file from the first control
// file dpkg-query reports.
func (a *Appender) listPath(ctx context.Context, name string) (string, error) {
	debName := strings.ReplaceAll(name, "_", "-")
	out, err := a.runner.Run(ctx, nil, "dpkg-query", "-c", debName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotStub, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	first = strings.TrimSpace(first)
	dot := strings.LastIndex(first, ".")
	if dot < 0 {
		return "", fmt.Errorf("%w: no control files for %s", ErrNotStub, debName)
	}
	return first[:dot+1] + "list", nil
}

// detect checks that list is a directory chain from / ending at manifestPath.
func (a *Appender) detect(list, manifestPath string) error {
	f, err := a.fs.Open(list)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotStub, err)
	}
	defer func() {
		_ = f.Close()
	}()

	last := "/"
	line := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if !a.sameDir(filepath.Dir(line), last) {
			return fmt.Errorf("%w: %s does not extend %s", ErrNotStub, line, last)
		}
		last = line
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotStub, err)
	}
	if line != manifestPath {
		return fmt.Errorf("%w: list ends at %q, not %s", ErrNotStub, line, manifestPath)
	}
	return nil
}

func (a *Appender) sameDir(x, y string) bool {
	if filepath.Clean(x) == filepath.Clean(y) {
		return true
	}
	xi, err := a.fs.Stat(x)
	if err != nil {
		return false
	}
	yi, err := a.fs.Stat(y)
	if err != nil {
		return false
	}
	return os.SameFile(xi, yi)
}

func (a *Appender) writeLines(path string, flag int, lines []string) error {
	f, err := a.fs.OpenFile(path, flag, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		_, _ = w.WriteString(l)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
