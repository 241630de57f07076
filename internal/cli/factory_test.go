package cli

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/internal/config"
	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/supervisor"
)

func runTurn(t *testing.T, rt *Runtime, message string) *supervisor.TurnResult {
	t.Helper()
	result, err := rt.Supervisor.Handle(context.Background(), supervisor.TurnRequest{
		Message: message,
		UserID:  "alice",
	})
	require.NoError(t, err)
	return result
}

func TestNewRuntimeDefaults(t *testing.T) {
	cfg := config.Default()
	rt, err := NewRuntime(&cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	result := runTurn(t, rt, "Load the sales data")
	assert.Equal(t, domain.PhaseResponding, result.Outcome)

	families, err := rt.Metrics.Gather()
	require.NoError(t, err)
	var sawEngine bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "drover_") {
			sawEngine = true
			break
		}
	}
	assert.True(t, sawEngine, "engine metrics should be registered")
}

func TestNewRuntimeRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Storage.Backend = config.StorageRedis
	cfg.Storage.Redis.Address = mr.Addr()

	rt, err := NewRuntime(&cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	result := runTurn(t, rt, "Load the sales data")
	assert.Equal(t, domain.PhaseResponding, result.Outcome)

	var sawPrefixed bool
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "drover:") {
			sawPrefixed = true
			break
		}
	}
	assert.True(t, sawPrefixed, "conversation data should land under the configured prefix")
}

func TestNewRuntimeFileBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageFile
	cfg.Storage.File.Root = t.TempDir()

	rt, err := NewRuntime(&cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	result := runTurn(t, rt, "Load the sales data")

	state, err := rt.Supervisor.Get(context.Background(), result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResponding, state.Phase)

	entries, err := os.ReadDir(cfg.Storage.File.Root)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "file backend should persist under the configured root")
}

func TestNewRuntimeEncryptsAtRest(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageFile
	cfg.Storage.File.Root = t.TempDir()
	cfg.Security.EncryptionKey = strings.Repeat("ab", 32)

	rt, err := NewRuntime(&cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	const message = "Load the sales data"
	result := runTurn(t, rt, message)

	// Reads decrypt transparently.
	state, err := rt.Supervisor.Get(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.NotEmpty(t, state.Messages)
	assert.Equal(t, message, state.Messages[0].Text)

	// Nothing on disk carries the plaintext.
	err = filepath.WalkDir(cfg.Storage.File.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), message, "plaintext leaked to %s", path)
		return nil
	})
	require.NoError(t, err)
}

func TestNewRuntimeRejectsBadPIIPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Security.PIIPatterns = []string{"(unclosed"}

	_, err := NewRuntime(&cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pii_patterns")
}

func TestNewRuntimeRejectsUnreachableNATS(t *testing.T) {
	cfg := config.Default()
	cfg.Events.NATS.URL = "nats://127.0.0.1:1"

	_, err := NewRuntime(&cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.nats")
}

func TestNewRuntimeProcessCommands(t *testing.T) {
	t.Run("registers configured commands", func(t *testing.T) {
		cfg := config.Default()
		cfg.Executors.Processes = []config.ProcessCommand{
			{Capability: "disk_usage", Command: "df", Args: []string{"-h"}},
		}
		rt, err := NewRuntime(&cfg, logging.NewNop())
		require.NoError(t, err)
		rt.Close()
	})

	t.Run("rejects incomplete entries", func(t *testing.T) {
		cfg := config.Default()
		cfg.Executors.Processes = []config.ProcessCommand{{Capability: "broken"}}

		_, err := NewRuntime(&cfg, logging.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executors.processes")
	})
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	quiet := NewLogger(config.Logging{Level: "warn", Format: "text"}, false)
	assert.False(t, quiet.Enabled(ctx, slog.LevelDebug))

	debug := NewLogger(config.Logging{Level: "warn", Format: "text"}, true)
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

	jsonLogger := NewLogger(config.Logging{Level: "info", Format: "json"}, false)
	assert.NotNil(t, jsonLogger)
}

func TestDebugHooksAreComplete(t *testing.T) {
	hooks := DebugHooks(logging.NewNop())
	ctx := context.Background()
	state := &domain.ConversationState{ID: "conv-1", Phase: domain.PhaseResponding}

	require.NotNil(t, hooks.OnTurnStart)
	hooks.OnTurnStart(ctx, state)
	hooks.OnDecision(ctx, "conv-1", domain.RoutingDecision{Actor: "supervisor", Step: 1})
	hooks.OnExecutorStart(ctx, "conv-1", "data_ingestion", 1)
	hooks.OnExecutorEnd(ctx, "conv-1", "data_ingestion", 1, nil)
	hooks.OnTurnEnd(ctx, state, domain.PhaseResponding)
}
