package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/zmanda/manifest-restore/internal/accounts"
)

// Header holds the named arrays read from a package header. Arrays may be
// shorter than BaseNames or missing entirely.
type Header struct {
	Name       string
	BaseNames  []string
	DirIndexes []int64
	DirNames   []string
	FileFlags  []int64
	FileModes  []int64
	FileSizes  []int64
	LinkTos    []string
	UserNames  []string
	GroupNames []string
	Mtimes     []int64
	Digests    []string
	DigestAlgo int64
}

// Reader opens a package metadata container and returns its header.
type Reader interface {
	Read(path string) (*Header, error)
}

// StaticReader implements Reader by returning a fixed header, for testing.
type StaticReader struct {
	Header *Header
	Err    error
}

// Read returns the configured header or error.
func (r *StaticReader) Read(path string) (*Header, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Header, nil
}

// LoadOptions carries the collaborators used by Load.
type LoadOptions struct {
	// TrustedDir is the only directory manifests may be read from.
	TrustedDir string

	Reader   Reader
	Resolver accounts.Resolver
	Logger   zerolog.Logger
}

// Load reads the manifest at path and resolves its owner and group names.
func Load(path string, opts LoadOptions) (*Model, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	trusted, err := resolvePath(opts.TrustedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trusted directory: %w", err)
	}
	if filepath.Dir(resolved) != trusted {
		return nil, fmt.Errorf("%w: %s must be in %s", ErrInvalidLocation, resolved, trusted)
	}

	hdr, err := opts.Reader.Read(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadablePackage, resolved, err)
	}

	m, err := FromHeader(hdr, resolved, opts.Resolver, opts.Logger)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug().
		Str("package", m.Name).
		Int("files", m.Len()).
		Int("dirs", len(m.Dirs)).
		Msg("manifest loaded")
	return m, nil
}

// FromHeader builds a Model from an already-read header. path is recorded as
// the manifest location and used in error messages.
func FromHeader(hdr *Header, path string, resolver accounts.Resolver, log zerolog.Logger) (*Model, error) {
	if hdr == nil {
		return nil, fmt.Errorf("%w: %s: no header", ErrUnreadablePackage, path)
	}
	m := &Model{
		Name:         hdr.Name,
		Path:         path,
		Dirs:         hdr.DirNames,
		DigestAlgo:   int(hdr.DigestAlgo),
		DigestSuffix: digestSuffix(int(hdr.DigestAlgo)),
		Records:      make([]Record, len(hdr.BaseNames)),
	}
	for n := range m.Records {
		rec := Record{
			BaseName:   hdr.BaseNames[n],
			DirIndex:   int(at(hdr.DirIndexes, n)),
			Flags:      Flags(at(hdr.FileFlags, n)),
			Mode:       uint32(at(hdr.FileModes, n)) & 0xffff,
			Size:       at(hdr.FileSizes, n),
			LinkTarget: at(hdr.LinkTos, n),
			Owner:      at(hdr.UserNames, n),
			Group:      at(hdr.GroupNames, n),
			Mtime:      at(hdr.Mtimes, n),
			Digest:     at(hdr.Digests, n),
		}
		if rec.DirIndex < 0 || rec.DirIndex >= len(m.Dirs) {
			return nil, fmt.Errorf("%w: %s: file %d (%s) has directory index %d of %d",
				ErrUnreadablePackage, path, n, rec.BaseName, rec.DirIndex, len(m.Dirs))
		}
		m.Records[n] = rec
	}

	m.uids = resolveNames(m.Records, accounts.User, resolver, log)
	m.gids = resolveNames(m.Records, accounts.Group, resolver, log)
	return m, nil
}

// resolveNames resolves each distinct owner or group name once. Names that
// fall back to id 0 are logged so the fallback is never silent.
func resolveNames(recs []Record, kind accounts.Kind, r accounts.Resolver, log zerolog.Logger) map[string]accounts.Resolution {
	out := map[string]accounts.Resolution{"root": {ID: 0, Found: true}}
	for i := range recs {
		name := recs[i].Owner
		if kind == accounts.Group {
			name = recs[i].Group
		}
		if _, ok := out[name]; ok {
			continue
		}
		res := r.Resolve(kind, name)
		if !res.Found {
			log.Warn().Str(kind.String(), name).Msg("unknown account, using id 0")
		}
		out[name] = res
	}
	return out
}

// resolvePath follows symlinks in path. A path that does not exist yet is
// only made absolute so the location check still applies.
func resolvePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return filepath.Abs(resolved)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return filepath.Abs(path)
	}
	return "", err
}

func at[T any](s []T, n int) T {
	var zero T
	if n < len(s) {
		return s[n]
	}
	return zero
}
