package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"predictchain/config"
	"predictchain/core"
	"predictchain/storage"
)

const genesisJSON = `{
  "platform": {
    "authority": "0x00000000000000000000000000000000000000a1",
    "treasury": "0x00000000000000000000000000000000000000e7",
    "betBurnRateBps": 100,
    "claimBurnRateBps": 100,
    "platformFeeBps": 0
  },
  "alloc": {"0x0000000000000000000000000000000000000001": "500"}
}`

func TestResolveGenesisPathPrecedence(t *testing.T) {
	env := func(value string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			if key == genesisPathEnv && value != "" {
				return value, true
			}
			return "", false
		}
	}
	require.Equal(t, "flag.json", resolveGenesisPath(" flag.json ", "cfg.json", env("env.json")))
	require.Equal(t, "env.json", resolveGenesisPath("", "cfg.json", env("env.json")))
	require.Equal(t, "cfg.json", resolveGenesisPath("", "cfg.json", env("")))
	require.Empty(t, resolveGenesisPath("", "", nil))
}

func TestOpenDatabaseBackends(t *testing.T) {
	for _, backend := range []string{config.StorageMemory, config.StorageBolt, config.StorageLevelDB} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage = backend
			cfg.DataDir = filepath.Join(t.TempDir(), "data")
			db, err := openDatabase(cfg)
			require.NoError(t, err)
			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			require.NoError(t, db.Close())
		})
	}
}

func TestBootstrapAppliesGenesisOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(genesisJSON), 0o600))

	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	db, err := openDatabase(cfg)
	require.NoError(t, err)
	proc, err := core.NewProcessor(db)
	require.NoError(t, err)

	require.NoError(t, bootstrap(proc, path, logger))
	bal, err := proc.Balance([20]byte{19: 0x01})
	require.NoError(t, err)
	require.EqualValues(t, 500, bal)

	// A second start with the same file is a no-op.
	require.NoError(t, bootstrap(proc, path, logger))
	bal, err = proc.Balance([20]byte{19: 0x01})
	require.NoError(t, err)
	require.EqualValues(t, 500, bal)
}

func TestBootstrapWithoutGenesis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	proc, err := core.NewProcessor(storage.NewMemDB())
	require.NoError(t, err)
	require.NoError(t, bootstrap(proc, "", logger))

	ok, err := proc.Initialized()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTelemetryConfigFallsBackToEnvironment(t *testing.T) {
	env := map[string]string{
		otlpEndpointEnv: " collector:4318 ",
		otlpHeadersEnv:  "x-team=markets,bad",
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	cfg := config.Default()
	got := telemetryConfig(cfg, lookup)
	require.Equal(t, "marketd", got.ServiceName)
	require.Equal(t, "local", got.Environment)
	require.Equal(t, "collector:4318", got.Endpoint)
	require.Equal(t, map[string]string{"x-team": "markets"}, got.Headers)

	cfg.Telemetry.Endpoint = "otel:4318"
	cfg.Telemetry.Headers = "a=b"
	got = telemetryConfig(cfg, lookup)
	require.Equal(t, "otel:4318", got.Endpoint)
	require.Equal(t, map[string]string{"a": "b"}, got.Headers)

	require.Empty(t, telemetryConfig(config.Default(), nil).Endpoint)
}
