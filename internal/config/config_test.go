package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func currencyKeys(cfg *Config) []string {
	keys := make([]string, 0, len(cfg.Currencies.InitialBalances))
	for k := range cfg.Currencies.InitialBalances {
		keys = append(keys, k)
	}
	return keys
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  url: \"postgres://localhost/fx\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Service.HTTPAddr)
	require.ElementsMatch(t, []string{"USD", "EUR", "JPY", "GBP", "AUD"}, currencyKeys(cfg))
	require.Equal(t, "1000000", cfg.Currencies.InitialBalances["USD"])
	require.Equal(t, "0.001", cfg.Margin.TransactionRate)
	require.Equal(t, 3*time.Second, cfg.SettlementDelay("USD"))
	require.Equal(t, 2*time.Second, cfg.SettlementDelay("EUR"))
	require.Equal(t, 60*time.Second, cfg.RebalanceInterval())
	require.True(t, cfg.IsSupported("GBP"))
	require.False(t, cfg.IsSupported("CAD"))
}

func TestLoadRejectsMissingDatabaseURL(t *testing.T) {
	path := writeConfig(t, "service:\n  http_addr: \":9090\"\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsTooFewCurrencies(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/fx"
currencies:
  initial_balances:
    USD: "1000"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestIsSupportedDerivedFromInitialBalances(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/fx"
currencies:
  initial_balances:
    USD: "1000"
    EUR: "900"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.True(t, cfg.IsSupported("USD"))
	require.True(t, cfg.IsSupported("EUR"))
	require.False(t, cfg.IsSupported("JPY"))
}

func TestDatabaseURLEnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  url: \"postgres://placeholder/fx\"\n")

	t.Setenv("DATABASE_URL", "postgres://from-env/fx")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://from-env/fx", cfg.Database.URL)
}

func TestSettlementDelayDefaultsForUnconfiguredCurrency(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/fx"
settlement:
  times_seconds:
    USD: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7*time.Second, cfg.SettlementDelay("USD"))
	require.Equal(t, 3*time.Second, cfg.SettlementDelay("JPY"))
}
