package cli

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [source]",
	Short: "Show finished syncs, most recent first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}

	source := ""
	if len(args) == 1 {
		source = args[0]
	}
	entries, err := syncEngine.GetSyncHistory(cmd.Context(), source, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("No sync history.")
		return nil
	}

	cmd.Printf("%-10s %-20s %-10s %8s %10s %s\n", "TASK", "SOURCE", "STATUS", "FILES", "SIZE", "FINISHED")
	for _, h := range entries {
		cmd.Printf("%-10s %-20s %-10s %8d %10s %s\n",
			h.TaskID, h.SourceName, h.Status, h.SyncedFiles,
			humanize.Bytes(uint64(h.SyncedSize)), humanize.Time(h.Completed))
		if h.Error != "" {
			cmd.Printf("           error: %s\n", h.Error)
		}
	}
	return nil
}
