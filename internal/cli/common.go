package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"

	"github.com/zmanda/manifest-restore/internal/accounts"
	"github.com/zmanda/manifest-restore/internal/config"
	"github.com/zmanda/manifest-restore/internal/execx"
	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
	"github.com/zmanda/manifest-restore/internal/rpmhdr"
)

// deps holds the collaborators and process facts a command runs with.
type deps struct {
	paths    *config.Paths
	fs       fsops.FS
	reader   manifest.Reader
	resolver accounts.Resolver
	runner   execx.Runner
	dpkgFS   afero.Fs

	// privileged enables repairs.
	privileged bool
	// pid qualifies the names of paths moved aside.
	pid int
	// interactive allows the change report on stdout.
	interactive bool
}

// newDeps creates the collaborators for a command. Tests replace it.
var newDeps = defaultDeps

// defaultDeps creates deps with real implementations of all dependencies.
func defaultDeps() (*deps, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}

	return &deps{
		paths:       paths,
		fs:          fsops.NewRealFS(),
		reader:      rpmhdr.NewReader(),
		resolver:    accounts.NewSystemResolver(),
		runner:      execx.NewExecRunner(),
		dpkgFS:      afero.NewOsFs(),
		privileged:  os.Geteuid() == 0,
		pid:         os.Getpid(),
		interactive: isTerminal(os.Stdin) || isTerminal(os.Stdout),
	}, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// outputJSON writes a value as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
