// Package config loads the engine's YAML configuration: nested yaml-tagged
// structs, Load(path), defaults applied after unmarshal, and a
// DATABASE_URL environment override for the one genuinely secret value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full, validated engine configuration.
type Config struct {
	Service struct {
		HTTPAddr string `yaml:"http_addr"`
	} `yaml:"service"`

	Database struct {
		URL          string `yaml:"url"`
		MaxConns     int32  `yaml:"max_conns"`
	} `yaml:"database"`

	Currencies struct {
		InitialBalances map[string]string `yaml:"initial_balances"`
	} `yaml:"currencies"`

	Margin struct {
		TransactionRate string `yaml:"transaction_rate"`
	} `yaml:"margin"`

	Settlement struct {
		TimesSeconds map[string]int `yaml:"times_seconds"`
	} `yaml:"settlement"`

	Rebalance struct {
		HighUtilization   string `yaml:"high_utilization"`
		LowUtilization    string `yaml:"low_utilization"`
		BufferMultiplier  string `yaml:"buffer_multiplier"`
		IntervalSeconds   int    `yaml:"interval_seconds"`
		MetricsWindowHours int   `yaml:"metrics_window_hours"`
	} `yaml:"rebalance"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads and validates the YAML config at path, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.HTTPAddr == "" {
		c.Service.HTTPAddr = ":8080"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if len(c.Currencies.InitialBalances) == 0 {
		c.Currencies.InitialBalances = map[string]string{
			"USD": "1000000",
			"EUR": "921658",
			"JPY": "109890110",
			"GBP": "750000",
			"AUD": "1349528",
		}
	}
	if c.Margin.TransactionRate == "" {
		c.Margin.TransactionRate = "0.001"
	}
	if len(c.Settlement.TimesSeconds) == 0 {
		c.Settlement.TimesSeconds = map[string]int{
			"USD": 3, "EUR": 2, "JPY": 3, "GBP": 2, "AUD": 3,
		}
	}
	if c.Rebalance.HighUtilization == "" {
		c.Rebalance.HighUtilization = "0.7"
	}
	if c.Rebalance.LowUtilization == "" {
		c.Rebalance.LowUtilization = "0.3"
	}
	if c.Rebalance.BufferMultiplier == "" {
		c.Rebalance.BufferMultiplier = "1.5"
	}
	if c.Rebalance.IntervalSeconds == 0 {
		c.Rebalance.IntervalSeconds = 60
	}
	if c.Rebalance.MetricsWindowHours == 0 {
		c.Rebalance.MetricsWindowHours = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}
	if len(c.Currencies.InitialBalances) < 2 {
		return fmt.Errorf("currencies.initial_balances must list at least two currencies")
	}
	return nil
}

// RebalanceInterval returns the configured rebalance cadence as a Duration.
func (c *Config) RebalanceInterval() time.Duration {
	return time.Duration(c.Rebalance.IntervalSeconds) * time.Second
}

// SettlementDelay returns the configured settlement delay for a currency,
// defaulting to 3 seconds if unconfigured.
func (c *Config) SettlementDelay(currency string) time.Duration {
	if secs, ok := c.Settlement.TimesSeconds[currency]; ok {
		return time.Duration(secs) * time.Second
	}
	return 3 * time.Second
}

// IsSupported reports whether currency has an initial_balances entry. The
// set of supported currencies is exactly the set of currencies with a
// pool, so there is no separate allowlist that can drift out of sync.
func (c *Config) IsSupported(currency string) bool {
	_, ok := c.Currencies.InitialBalances[currency]
	return ok
}
