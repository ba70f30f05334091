package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadLiquidatorConfigDefaults(t *testing.T) {
	t.Setenv("LIQUIDATOR_KEYPAIR_PATH", "/tmp/operator.json")

	cfg, err := LoadLiquidatorConfig()
	require.NoError(t, err)

	require.Equal(t, rpc.MainNetBeta_RPC, cfg.RPCURL)
	require.Equal(t, rpc.CommitmentProcessed, cfg.Commitment)
	require.Equal(t, DefaultClearingHouseProgramID, cfg.ClearingHouseProgramID)
	require.Equal(t, 10*time.Millisecond, cfg.SlotPollInterval)
	require.Equal(t, 45*time.Second, cfg.RPCTimeout)
	require.True(t, cfg.EnableOrderCrank)
	require.False(t, cfg.DryRun)
	require.Nil(t, cfg.MaxRetries)
	require.Equal(t, "/tmp/operator.json", cfg.KeypairPath)
}

func TestLoadLiquidatorConfigFromEnv(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("SOLANA_COMMITMENT", "confirmed")
	t.Setenv("LIQUIDATOR_WORKERS", "3")
	t.Setenv("LIQUIDATOR_MAX_RETRIES", "0")
	t.Setenv("LIQUIDATOR_DRY_RUN", "true")
	t.Setenv("LIQUIDATOR_LOG_LEVEL", "warn")

	cfg, err := LoadLiquidatorConfig()
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:8899", cfg.RPCURL)
	require.Equal(t, rpc.CommitmentConfirmed, cfg.Commitment)
	require.Equal(t, 3, cfg.Workers)
	require.NotNil(t, cfg.MaxRetries)
	require.Zero(t, *cfg.MaxRetries)
	require.True(t, cfg.DryRun)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLiquidatorConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SOLANA_COMMITMENT":               "eventually",
		"LIQUIDATOR_SLOT_POLL_INTERVAL":   "-1s",
		"LIQUIDATOR_WORKERS":              "zero",
		"CLEARING_HOUSE_PROGRAM_ID":       "not-a-key",
		"LIQUIDATOR_RPC_RETRY_BASE_DELAY": "10s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadLiquidatorConfig()
			require.Error(t, err)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Run("flags win over environment", func(t *testing.T) {
		cfg := LiquidatorConfig{RPCURL: "http://env", KeypairPath: "/env.json"}
		require.NoError(t, cfg.Apply(Overrides{KeypairPath: "/flag.json", RPCURL: "http://flag"}))
		require.Equal(t, "/flag.json", cfg.KeypairPath)
		require.Equal(t, "http://flag", cfg.RPCURL)
		require.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("verbose selects debug when no level is configured", func(t *testing.T) {
		cfg := LiquidatorConfig{KeypairPath: "/env.json"}
		require.NoError(t, cfg.Apply(Overrides{Verbose: true}))
		require.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("configured level wins over verbose", func(t *testing.T) {
		cfg := LiquidatorConfig{KeypairPath: "/env.json", Log: LogConfig{Level: "error"}}
		require.NoError(t, cfg.Apply(Overrides{Verbose: true}))
		require.Equal(t, "error", cfg.Log.Level)
	})

	t.Run("keypair is required", func(t *testing.T) {
		cfg := LiquidatorConfig{}
		require.ErrorIs(t, cfg.Apply(Overrides{}), ErrMissingKeypair)
	})
}

func TestFlattenConfigValue(t *testing.T) {
	body := []byte(`
liquidator:
  rpc:
    timeout: 5s
  dry-run: true
  workers: 4
solana:
  rpc url: http://localhost:8899
tags: [a, " b ", 3]
`)
	raw := make(map[string]any)
	require.NoError(t, yaml.Unmarshal(body, &raw))

	out := make(map[string]string)
	for key, value := range raw {
		require.NoError(t, flattenConfigValue(normalizeKeySegment(key), value, out))
	}

	require.Equal(t, "5s", out["LIQUIDATOR_RPC_TIMEOUT"])
	require.Equal(t, "true", out["LIQUIDATOR_DRY_RUN"])
	require.Equal(t, "4", out["LIQUIDATOR_WORKERS"])
	require.Equal(t, "http://localhost:8899", out["SOLANA_RPC_URL"])
	require.Equal(t, "a,b,3", out["TAGS"])
}

func TestNormalizeKeySegment(t *testing.T) {
	require.Equal(t, "RPC_URL", normalizeKeySegment("rpc-url"))
	require.Equal(t, "A_B", normalizeKeySegment("  a__b- "))
	require.Equal(t, "", normalizeKeySegment("--"))
}
