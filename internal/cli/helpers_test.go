package cli

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/zmanda/manifest-restore/internal/accounts"
	"github.com/zmanda/manifest-restore/internal/config"
	"github.com/zmanda/manifest-restore/internal/execx"
	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

const (
	trustedDir   = "/manifests"
	manifestPath = trustedDir + "/app.manifest"
	fileMtime    = 1700000000
)

// pathReader serves headers by manifest path.
type pathReader map[string]*manifest.Header

func (r pathReader) Read(path string) (*manifest.Header, error) {
	hdr, ok := r[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return hdr, nil
}

func appHeader() *manifest.Header {
	return &manifest.Header{
		Name:       "app",
		DirNames:   []string{"/opt/app/", "/etc/app/"},
		BaseNames:  []string{"x", "app.conf"},
		DirIndexes: []int64{0, 1},
		FileModes:  []int64{0o100755, 0o100640},
		FileSizes:  []int64{10, 5},
		FileFlags:  []int64{0, int64(manifest.FlagConfig)},
		UserNames:  []string{"app", "app"},
		GroupNames: []string{"app", "app"},
		Mtimes:     []int64{fileMtime, fileMtime},
		Digests:    []string{"abc", "def"},
		DigestAlgo: 1,
	}
}

type testEnv struct {
	fs     *fsops.MemFS
	runner *execx.FakeRunner
	dpkg   afero.Fs
	reader pathReader
	deps   *deps
}

// addFile adds a file owned by app with the manifest mtime.
func (e *testEnv) addFile(path string, perm uint32, size int64) *fsops.MemNode {
	n := e.fs.AddFile(path, perm, size)
	n.UID, n.GID = 500, 500
	n.Mtime = time.Unix(fileMtime, 0)
	return n
}

// setupEnv installs fake collaborators for the commands and resets flags.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	resolver := accounts.NewStaticResolver()
	resolver.Users["app"] = 500
	resolver.Groups["app"] = 500

	env := &testEnv{
		fs:     fsops.NewMemFS(),
		runner: execx.NewFakeRunner(),
		dpkg:   afero.NewMemMapFs(),
		reader: pathReader{manifestPath: appHeader()},
	}
	env.deps = &deps{
		paths:       &config.Paths{Manifests: trustedDir},
		fs:          env.fs,
		reader:      env.reader,
		resolver:    resolver,
		runner:      env.runner,
		dpkgFS:      env.dpkg,
		privileged:  true,
		pid:         77,
		interactive: true,
	}

	oldDeps, oldNoColor := newDeps, color.NoColor
	newDeps = func() (*deps, error) { return env.deps, nil }
	color.NoColor = true
	resetFlags()
	t.Cleanup(func() {
		newDeps = oldDeps
		color.NoColor = oldNoColor
		resetFlags()
	})
	return env
}

func resetFlags() {
	jsonOutput = false
	verbosity = 0
	restoreFlags.clearSymlinks = false
	restoreFlags.stubOnly = false
	restoreFlags.confSave = false
	restoreFlags.verifyDigests = false
	for _, name := range []string{"help", "version"} {
		if f := rootCmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set("false")
		}
	}
}

// execute runs the root command with args and returns stdout and stderr.
func execute(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}
