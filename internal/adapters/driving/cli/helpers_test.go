package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/services"
	"github.com/custodia-labs/mirrorsync/internal/transports"
	"github.com/custodia-labs/mirrorsync/internal/transports/filesystem"
)

// testEnv is a real engine over memory stores with the local transport.
type testEnv struct {
	engine   *services.SyncEngine
	settings *services.SettingsService
	baseDir  string
}

func setupTestServices(t *testing.T, sources ...domain.Source) *testEnv {
	t.Helper()

	registry := transports.NewRegistry()
	registry.Register(domain.TransportLocal, filesystem.New(afero.NewOsFs()))

	baseDir := t.TempDir()
	engine, err := services.NewSyncEngine(context.Background(),
		domain.EngineConfig{BaseDir: baseDir, Workers: 2},
		memory.NewSourceStore(sources...), memory.NewHistoryStore(100), registry)
	require.NoError(t, err)
	settingsSvc := services.NewSettingsService(memory.NewConfigStore(), t.TempDir())

	oldEngine, oldSettings, oldWatcher := syncEngine, settingsService, sourceWatcher
	oldPoll := pollInterval
	syncEngine, settingsService, sourceWatcher = engine, settingsSvc, nil
	pollInterval = 10 * time.Millisecond

	t.Cleanup(func() {
		_ = engine.Close()
		syncEngine, settingsService, sourceWatcher = oldEngine, oldSettings, oldWatcher
		pollInterval = oldPoll
	})
	return &testEnv{engine: engine, settings: settingsSvc, baseDir: baseDir}
}

// clearServices unsets every service global for the duration of the test.
func clearServices(t *testing.T) {
	t.Helper()
	oldEngine, oldSettings, oldWatcher := syncEngine, settingsService, sourceWatcher
	syncEngine, settingsService, sourceWatcher = nil, nil, nil
	t.Cleanup(func() {
		syncEngine, settingsService, sourceWatcher = oldEngine, oldSettings, oldWatcher
	})
}

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so executions do not leak
// values into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// localTree writes files of size bytes under a temp directory.
func localTree(t *testing.T, size int, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte("m"), size), 0o644))
	}
	return dir
}

func localSource(name, dir string) domain.Source {
	return domain.Source{Name: name, Type: domain.TransportLocal, Endpoint: dir, Enabled: true}
}
