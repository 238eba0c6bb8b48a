package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mirrorsync/internal/core/ports/driving"
	"github.com/custodia-labs/mirrorsync/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=...".
var version = "dev"

// Services used by the commands. Execute wires the real implementations;
// tests assign mocks directly.
var (
	syncEngine      driving.SyncEngine
	settingsService driving.SettingsService
	sourceWatcher   SourceWatcher
)

// SourceWatcher reports edits of the persisted source file.
type SourceWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// initServices builds the services before a command runs. It is nil under test.
var initServices func(cmd *cobra.Command) (cleanup func(), err error)

var (
	configDir   string
	verboseFlag bool
	cleanupApp  func()
)

var rootCmd = &cobra.Command{
	Use:   "mirrorsync",
	Short: "Mirror remote file collections into local storage",
	Long: `mirrorsync keeps local copies of files published over HTTP(S), FTP,
SFTP, S3 or a local directory. Sources are registered once and synced on
demand, either from the command line or through the HTTP API started by
"mirrorsync serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if verboseFlag {
			logger.SetVerbose(true)
		}
		if initServices == nil || cmd.Annotations[skipServices] == "true" {
			return nil
		}
		cleanup, err := initServices(cmd)
		if err != nil {
			return err
		}
		cleanupApp = cleanup
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if cleanupApp != nil {
			cleanupApp()
			cleanupApp = nil
		}
	},
}

// skipServices marks commands that run without the engine.
const skipServices = "skip-services"

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"configuration directory (default ~/.mirrorsync)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

// Execute wires the application and runs the root command.
func Execute() {
	initServices = bootstrap
	if err := rootCmd.Execute(); err != nil {
		if cleanupApp != nil {
			cleanupApp()
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
