package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AssetDefaults overrides the oracle's hardcoded cache-miss fallback prices.
// Operators supply this file when the default XEC/FIRMA pricing assumptions
// don't hold for their deployment, e.g. a staging environment pinned to a
// fixed test price.
type AssetDefaults struct {
	DefaultPricesUSD map[string]float64 `yaml:"default_prices_usd"`
}

// LoadAssetDefaults reads the optional ASSET_CONFIG_PATH override file. A
// missing path is not an error: the oracle's built-in defaults apply.
func LoadAssetDefaults(path string) (AssetDefaults, error) {
	if path == "" {
		return AssetDefaults{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return AssetDefaults{}, fmt.Errorf("config: read asset config %s: %w", path, err)
	}
	var out AssetDefaults
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return AssetDefaults{}, fmt.Errorf("config: parse asset config %s: %w", path, err)
	}
	return out, nil
}
