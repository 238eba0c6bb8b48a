package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// pollInterval is how often sync progress is refreshed.
var pollInterval = 500 * time.Millisecond

var syncCmd = &cobra.Command{
	Use:   "sync [source...]",
	Short: "Mirror sources in the foreground",
	Long: `Start a sync for each named source, or every enabled source when none
are given, and wait for them to finish. Press Ctrl-C to stop the running
tasks; partial downloads are kept and resumed by the next sync.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}

	names := args
	if len(names) == 0 {
		for _, src := range syncEngine.GetSources(cmd.Context()) {
			if src.Enabled {
				names = append(names, src.Name)
			}
		}
		if len(names) == 0 {
			cmd.Println("No enabled sources to sync.")
			return nil
		}
	}

	var taskIDs []string
	failed := 0
	for _, name := range names {
		id, err := syncEngine.StartSync(cmd.Context(), name)
		if err != nil {
			cmd.PrintErrf("%s: %v\n", name, err)
			failed++
			continue
		}
		cmd.Printf("Syncing %s (task %s)\n", name, id)
		taskIDs = append(taskIDs, id)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, snap := range waitForTasks(ctx, cmd, taskIDs) {
		printTaskResult(cmd, snap)
		if snap.Status != domain.StatusCompleted || snap.FailedFiles > 0 {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d syncs did not complete cleanly", failed, len(names))
	}
	return nil
}

// waitForTasks polls until every task is terminal. Cancelling ctx stops the
// remaining tasks; polling continues until they settle.
func waitForTasks(ctx context.Context, cmd *cobra.Command, ids []string) []domain.TaskSnapshot {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	results := make([]domain.TaskSnapshot, 0, len(ids))
	lastLine := make(map[string]string, len(ids))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for len(pending) > 0 {
		select {
		case <-done:
			cmd.Println("Stopping...")
			for id := range pending {
				syncEngine.StopSync(id)
			}
			done = nil
			continue
		case <-ticker.C:
		}

		for _, id := range ids {
			if !pending[id] {
				continue
			}
			snap, ok := syncEngine.GetTaskStatus(id)
			if !ok {
				delete(pending, id)
				continue
			}
			if snap.Status.IsTerminal() {
				delete(pending, id)
				results = append(results, *snap)
				continue
			}
			if line := progressLine(snap); line != lastLine[id] {
				lastLine[id] = line
				cmd.Println(line)
			}
		}
	}
	return results
}

func progressLine(snap *domain.TaskSnapshot) string {
	line := fmt.Sprintf("  %s [%s] %d/%d files, %s of %s",
		snap.SourceName, snap.Status, snap.SyncedFiles, snap.TotalFiles,
		humanize.Bytes(uint64(snap.SyncedSize)), humanize.Bytes(uint64(snap.TotalSize)))
	if snap.Speed > 0 {
		line += fmt.Sprintf(", %s/s", humanize.Bytes(uint64(snap.Speed)))
	}
	if snap.ETA > 0 {
		line += fmt.Sprintf(", %s left", (time.Duration(snap.ETA) * time.Second).String())
	}
	if snap.CurrentFile != "" {
		line += " " + snap.CurrentFile
	}
	return line
}

func printTaskResult(cmd *cobra.Command, snap domain.TaskSnapshot) {
	switch snap.Status {
	case domain.StatusCompleted:
		cmd.Printf("%s: completed, %d files synced (%s)", snap.SourceName, snap.SyncedFiles,
			humanize.Bytes(uint64(snap.SyncedSize)))
		if snap.FailedFiles > 0 {
			cmd.Printf(", %d failed", snap.FailedFiles)
		}
		cmd.Println()
	case domain.StatusFailed:
		cmd.Printf("%s: failed: %s\n", snap.SourceName, snap.Error)
	default:
		cmd.Printf("%s: %s\n", snap.SourceName, snap.Status)
	}
}
