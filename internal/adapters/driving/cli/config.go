package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

var errSettingsNotConfigured = errors.New("settings service not configured")

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and change settings",
	Long: `Settings are stored in config.toml inside the configuration directory.
Run "mirrorsync config show" for every key and its effective value.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every setting and its effective value",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print the stored value of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:     "set [key] [value]",
	Short:   "Store a setting",
	Example: "  mirrorsync config set engine.workers 8\n  mirrorsync config set storage.base_dir /srv/mirror",
	Args:    cobra.ExactArgs(2),
	RunE:    runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Restore a setting to its default",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUnset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if settingsService == nil {
			return errSettingsNotConfigured
		}
		cmd.Println(settingsService.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	s := settingsService.Get()

	effective := map[string]any{
		domain.KeyBaseDir:       s.Engine.BaseDir,
		domain.KeyWorkers:       s.Engine.Workers,
		domain.KeyQueueSize:     s.Engine.QueueSize,
		domain.KeyHistoryLimit:  s.Engine.HistoryLimit,
		domain.KeyKeepCompleted: s.Engine.KeepCompleted,
		domain.KeySourcesFile:   s.SourcesFile,
		domain.KeyHistoryFile:   s.HistoryFile,
		domain.KeyWatchSources:  s.WatchSources,
		domain.KeyAPIAddr:       s.APIAddr,
		domain.KeyVerbose:       s.Verbose,
	}

	cmd.Printf("Config file: %s\n\n", settingsService.Path())
	for _, key := range domain.SettingKeys() {
		marker := " "
		if _, ok := settingsService.Value(key.Key); ok {
			marker = "*"
		}
		cmd.Printf("%s %-22s = %-30v %s\n", marker, key.Key, effective[key.Key], key.Description)
	}
	cmd.Println("\n* set in config file")
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	if _, ok := domain.LookupSetting(args[0]); !ok {
		return fmt.Errorf("unknown setting %q", args[0])
	}
	v, ok := settingsService.Value(args[0])
	if !ok {
		cmd.Println("(not set)")
		return nil
	}
	cmd.Println(v)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return err
	}
	cmd.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	if err := settingsService.Unset(args[0]); err != nil {
		return err
	}
	cmd.Printf("Unset %s\n", args[0])
	return nil
}
