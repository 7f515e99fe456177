// Package config loads runtime configuration from the environment: plain
// os.Getenv with typed defaults and explicit parse-error wrapping, no
// config framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of tunables read at process start.
type Config struct {
	Port     string
	Frontend string

	DatabasePath     string
	CoingeckoAPIURL  string
	EscrowIndexerURL string

	InitialLTV         float64
	MarginCallLTV      float64
	LiquidationLTV     float64
	HourlyInterestRate float64
	LiquidationFee     float64
	DailyYieldRate     float64

	OracleTTL       time.Duration
	OracleTimeout   time.Duration
	AssetConfigPath string

	LogLevel string
	LogFile  string

	MetricsAddr string
}

// Load builds a Config from the environment, applying defaults for any
// variable left unset.
func Load() (Config, error) {
	cfg := Config{
		Port:     getenvDefault("PORT", "3001"),
		Frontend: os.Getenv("FRONTEND_URL"),

		DatabasePath:     getenvDefault("DATABASE_PATH", "./data/loanzzz.db"),
		CoingeckoAPIURL:  getenvDefault("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
		EscrowIndexerURL: os.Getenv("ESCROW_INDEXER_URL"),

		OracleTTL:     60 * time.Second,
		OracleTimeout: 5 * time.Second,

		LogLevel: getenvDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		AssetConfigPath: os.Getenv("ASSET_CONFIG_PATH"),
		MetricsAddr:     getenvDefault("METRICS_ADDR", ":9100"),
	}

	var err error
	if cfg.InitialLTV, err = getenvFloat("INITIAL_LTV", 65); err != nil {
		return Config{}, err
	}
	if cfg.MarginCallLTV, err = getenvFloat("MARGIN_CALL_LTV", 75); err != nil {
		return Config{}, err
	}
	if cfg.LiquidationLTV, err = getenvFloat("LIQUIDATION_LTV", 83); err != nil {
		return Config{}, err
	}
	if cfg.HourlyInterestRate, err = getenvFloat("HOURLY_INTEREST_RATE", 0.0001); err != nil {
		return Config{}, err
	}
	if cfg.LiquidationFee, err = getenvFloat("LIQUIDATION_FEE", 0.02); err != nil {
		return Config{}, err
	}
	if cfg.DailyYieldRate, err = getenvFloat("DAILY_YIELD_RATE", 0.0001); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv("ORACLE_TTL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ORACLE_TTL: %w", err)
		}
		cfg.OracleTTL = dur
	}
	if raw := strings.TrimSpace(os.Getenv("ORACLE_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ORACLE_TIMEOUT: %w", err)
		}
		cfg.OracleTimeout = dur
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MarginCallLTV <= c.InitialLTV {
		return fmt.Errorf("config: MARGIN_CALL_LTV (%v) must exceed INITIAL_LTV (%v)", c.MarginCallLTV, c.InitialLTV)
	}
	if c.LiquidationLTV <= c.MarginCallLTV {
		return fmt.Errorf("config: LIQUIDATION_LTV (%v) must exceed MARGIN_CALL_LTV (%v)", c.LiquidationLTV, c.MarginCallLTV)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
