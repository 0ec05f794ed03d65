package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zmanda/manifest-restore/internal/accounts"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

const mtimeT = 1700000000

// fileSpec describes one manifest record for test models.
type fileSpec struct {
	dir    int
	name   string
	mode   int64
	size   int64
	owner  string
	group  string
	flags  manifest.Flags
	link   string
	digest string
}

func newModel(t *testing.T, dirs []string, files ...fileSpec) *manifest.Model {
	t.Helper()
	hdr := &manifest.Header{Name: "app", DirNames: dirs, DigestAlgo: 8}
	for _, f := range files {
		owner, group := f.owner, f.group
		if owner == "" {
			owner = "app"
		}
		if group == "" {
			group = "app"
		}
		hdr.BaseNames = append(hdr.BaseNames, f.name)
		hdr.DirIndexes = append(hdr.DirIndexes, int64(f.dir))
		hdr.FileModes = append(hdr.FileModes, f.mode)
		hdr.FileSizes = append(hdr.FileSizes, f.size)
		hdr.FileFlags = append(hdr.FileFlags, int64(f.flags))
		hdr.LinkTos = append(hdr.LinkTos, f.link)
		hdr.UserNames = append(hdr.UserNames, owner)
		hdr.GroupNames = append(hdr.GroupNames, group)
		hdr.Mtimes = append(hdr.Mtimes, mtimeT)
		hdr.Digests = append(hdr.Digests, f.digest)
	}

	r := accounts.NewStaticResolver()
	r.Users["app"] = 500
	r.Groups["app"] = 500
	r.Users["self"] = os.Getuid()
	r.Groups["self"] = os.Getgid()
	m, err := manifest.FromHeader(hdr, "/manifests/app.manifest", r, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func bufLogger(buf *bytes.Buffer) zerolog.Logger {
	return zerolog.New(buf).Level(zerolog.DebugLevel)
}

// logEvents are decoded JSON log events.
type logEvents []map[string]any

func decodeLogs(t *testing.T, buf *bytes.Buffer) logEvents {
	t.Helper()
	var events logEvents
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		var ev map[string]any
		require.NoError(t, dec.Decode(&ev))
		events = append(events, ev)
	}
	return events
}

// with returns the events whose field key equals value.
func (l logEvents) with(key, value string) logEvents {
	var out logEvents
	for _, ev := range l {
		if ev[key] == value {
			out = append(out, ev)
		}
	}
	return out
}

// fakeVerifier answers digest checks from a path table.
type fakeVerifier struct {
	matches map[string]bool
	err     error
	calls   []string
}

func (f *fakeVerifier) Verify(ctx context.Context, algo int, digest, path string) (bool, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return false, f.err
	}
	return f.matches[path], nil
}
