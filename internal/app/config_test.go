package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/internal/export"
	"github.com/loomledger/loomledger/internal/orders"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	require.Equal(t, export.ModeQueue, cfg.Export())
	require.Equal(t, orders.PendingWage, cfg.Strategy())
	require.Equal(t, time.UTC, cfg.Location())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("EXPORT_MODE", "inline")
	t.Setenv("PENDING_STRATEGY", "stock_value")
	t.Setenv("LEDGER_TIMEZONE", "Asia/Kolkata")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, export.ModeInline, cfg.Export())
	require.Equal(t, orders.PendingStockValue, cfg.Strategy())
	require.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoadConfigRejectsUnknownValues(t *testing.T) {
	cases := map[string]string{
		"EXPORT_MODE":      "email",
		"PENDING_STRATEGY": "guess",
		"LEDGER_TIMEZONE":  "Mars/Olympus",
		"LOG_FORMAT":       "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}
