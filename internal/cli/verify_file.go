package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zmanda/manifest-restore/internal/engine"
	"github.com/zmanda/manifest-restore/internal/logging"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

var verifyFileCmd = &cobra.Command{
	Use:   "verify-file <package> <path>",
	Short: "Check one installed file's mtime and size against its manifest",
	Long: `Check one installed file against the manifest of the package that owns it.

The package's manifest is looked up in the trusted manifest directory, falling
back to the copy kept for pre-uninstall. The command fails when the file is
not in the manifest, when its modification time differs or, after that, when
its size differs.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerifyFile,
}

func runVerifyFile(cmd *cobra.Command, args []string) error {
	pkg, path := args[0], args[1]
	d, err := newDeps()
	if err != nil {
		return err
	}

	model, err := loadPackage(d, pkg)
	if err != nil {
		return err
	}
	if err := engine.CheckFile(model, d.fs, path); err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), map[string]string{"package": model.Name, "path": path, "status": "ok"})
	}
	return nil
}

// loadPackage loads the first readable manifest candidate for pkg.
func loadPackage(d *deps, pkg string) (*manifest.Model, error) {
	opts := manifest.LoadOptions{
		TrustedDir: d.paths.Manifests,
		Reader:     d.reader,
		Resolver:   d.resolver,
		Logger:     logging.GetLogger("manifest"),
	}

	var errs []error
	for _, candidate := range d.paths.ManifestCandidates(pkg) {
		model, err := manifest.Load(candidate, opts)
		if err == nil {
			return model, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no manifest for %s: %w", pkg, errors.Join(errs...))
}
