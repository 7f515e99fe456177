package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "3001", cfg.Port)
	require.Equal(t, 65.0, cfg.InitialLTV)
	require.Equal(t, 75.0, cfg.MarginCallLTV)
	require.Equal(t, 83.0, cfg.LiquidationLTV)
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("MARGIN_CALL_LTV", "60")
	t.Setenv("INITIAL_LTV", "65")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsUnparsableFloat(t *testing.T) {
	t.Setenv("INITIAL_LTV", "not-a-number")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadAssetDefaultsMissingPathIsNotError(t *testing.T) {
	defaults, err := config.LoadAssetDefaults("")
	require.NoError(t, err)
	require.Empty(t, defaults.DefaultPricesUSD)
}

func TestLoadAssetDefaultsParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_prices_usd:\n  XEC: 0.00004\n  FIRMA: 1.0\n"), 0o644))

	defaults, err := config.LoadAssetDefaults(path)
	require.NoError(t, err)
	require.Equal(t, 0.00004, defaults.DefaultPricesUSD["XEC"])
}

func TestLoadAssetDefaultsMissingFileErrors(t *testing.T) {
	_, err := config.LoadAssetDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
