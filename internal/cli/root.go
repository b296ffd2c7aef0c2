package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/blockboard/blockboard/pkg/buildinfo"
)

// Execute runs the blockboard CLI and returns an error if any command
// fails. This is the main entry point for the CLI application.
//
// The function sets up the root command with all subcommands (serve, demo),
// configures logging based on the --verbose flag, and executes the command
// tree against ctx.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:   "blockboard",
		Short: "Blockboard keeps dashboard block layouts compact and saved",
		Long: `Blockboard is the layout engine behind grid dashboards. It compacts
blocks after every drag or resize and debounces the resulting edits into
batched saves, while guarding local work against stale external refreshes.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDemoCmd())

	return root.ExecuteContext(ctx)
}
