package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zmanda/manifest-restore/internal/logging"
)

var (
	// Global flags
	jsonOutput bool
	verbosity  int

	// Colors for help output sections
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// rootCmd is the root command for manifest-restore.
var rootCmd = &cobra.Command{
	Use:     "manifest-restore [flags] <manifest>",
	Version: "dev",
	Short:   "Restore installed package files to their manifest state",
	Long: `manifest-restore compares every file recorded in a package manifest with the
live filesystem and, when run as root, repairs ownership, symlinks, permissions
and modification times to match.

Manifests are only read from the trusted manifest directory
(MANIFEST_RESTORE_DIR overrides the default).`,
	Args:          cobra.ExactArgs(1),
	RunE:          runRestore,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity, cmd.ErrOrStderr(), color.NoColor)
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// customHelpFunc prints help with colored section titles.
func customHelpFunc(cmd *cobra.Command, args []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	}

	help.WriteString(sectionTitleColor.Sprint("Usage:"))
	help.WriteString("\n")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	hasCommands := false
	for _, c := range cmd.Commands() {
		if c.Hidden {
			continue
		}
		if !hasCommands {
			help.WriteString(sectionTitleColor.Sprint("Commands:"))
			help.WriteString("\n")
			hasCommands = true
		}
		fmt.Fprintf(&help, "  %-12s %s\n", c.Name(), c.Short)
	}
	if hasCommands {
		help.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailablePersistentFlags() {
		help.WriteString(sectionTitleColor.Sprint("Flags:"))
		help.WriteString("\n")
		help.WriteString(cmd.LocalFlags().FlagUsages())
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("\n")
	}

	if hasCommands {
		fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

func init() {
	rootCmd.SetHelpFunc(customHelpFunc)

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase diagnostic output (repeatable)")

	rootCmd.Flags().BoolVar(&restoreFlags.clearSymlinks, "clr-symlinks", false, "Move aside mismatched paths and remove symlinks before restoring")
	rootCmd.Flags().BoolVar(&restoreFlags.stubOnly, "stub-only", false, "Only register a stub install with dpkg, skip the restore pass")
	rootCmd.Flags().BoolVar(&restoreFlags.confSave, "conf-save", false, "Save config files aside instead of restoring them, skip the restore pass")
	rootCmd.Flags().BoolVar(&restoreFlags.verifyDigests, "verify-digests", false, "Check content digests of size-matching files")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the manifest-restore version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	})
	rootCmd.AddCommand(verifyFileCmd)
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}
