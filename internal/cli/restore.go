package cli

import (
	"github.com/spf13/cobra"

	"github.com/zmanda/manifest-restore/internal/digest"
	"github.com/zmanda/manifest-restore/internal/engine"
	"github.com/zmanda/manifest-restore/internal/logging"
	"github.com/zmanda/manifest-restore/internal/manifest"
	"github.com/zmanda/manifest-restore/internal/stubdb"
)

var restoreFlags struct {
	clearSymlinks bool
	stubOnly      bool
	confSave      bool
	verifyDigests bool
}

// runRestore loads the manifest and runs the passes the flags select. Only a
// load failure or a failed symlink-clearing pass is returned as an error.
func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := newDeps()
	if err != nil {
		return err
	}
	log := logging.GetLogger("restore")

	model, err := manifest.Load(args[0], manifest.LoadOptions{
		TrustedDir: d.paths.Manifests,
		Reader:     d.reader,
		Resolver:   d.resolver,
		Logger:     logging.GetLogger("manifest"),
	})
	if err != nil {
		return err
	}

	guard := engine.NewConfigGuard(d.fs, logging.GetLogger("guard"))
	if restoreFlags.clearSymlinks {
		if err := guard.ClearSymlinks(model, d.pid); err != nil {
			return err
		}
	}
	if restoreFlags.confSave {
		guard.Save(model)
	} else {
		guard.Restore(model)
	}

	appender := stubdb.NewAppender(d.dpkgFS, d.runner, logging.GetLogger("stubdb"))
	if err := appender.Append(ctx, model); err != nil {
		log.Debug().Err(err).Str("package", model.Name).Msg("dpkg registration skipped")
	}

	if restoreFlags.stubOnly || restoreFlags.confSave {
		return nil
	}

	opts := engine.Options{
		Privileged:    d.privileged,
		VerifyDigests: restoreFlags.verifyDigests,
	}
	var verifier digest.Verifier
	if opts.VerifyDigests {
		verifier = digest.NewCommandVerifier(d.runner)
	}
	report := engine.New(model, d.fs, verifier, opts, logging.GetLogger("engine")).Run(ctx)

	if jsonOutput {
		if err := outputJSON(cmd.OutOrStdout(), report.Lines()); err != nil {
			log.Warn().Err(err).Msg("failed to write report")
		}
		return nil
	}
	if !d.interactive {
		return nil
	}
	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		log.Warn().Err(err).Msg("failed to write report")
	}
	return nil
}
