package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/mirrorsync/internal/adapters/driving/api"
	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driving"
	"github.com/custodia-labs/mirrorsync/internal/logger"
)

var (
	serveAddr string

	// cleanupInterval is how often finished tasks are pruned while serving.
	cleanupInterval = time.Minute

	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the sync engine over HTTP until interrupted. Finished tasks are
pruned periodically, keeping engine.keep_completed of them. When
state.watch_sources is set, edits to the sources file are picked up
without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from api.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}

	addr := domain.DefaultAPIAddr
	keep := domain.DefaultKeepCompleted
	if settingsService != nil {
		s := settingsService.Get()
		addr = s.APIAddr
		keep = s.Engine.KeepCompleted
	}
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sourceWatcher != nil {
		err := sourceWatcher.Watch(ctx, func() {
			logger.Info("Sources file changed, registry reloaded")
		})
		if err != nil {
			logger.Warn("Watching sources file: %v", err)
		}
	}
	go pruneTasks(ctx, syncEngine, keep)

	if !logger.IsVerbose() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(syncEngine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	cmd.Printf("Serving API on %s\n", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	cmd.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func pruneTasks(ctx context.Context, engine driving.SyncController, keep int) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := engine.CleanupCompletedTasks(keep); n > 0 {
				logger.Debug("Pruned %d finished tasks", n)
			}
		}
	}
}
