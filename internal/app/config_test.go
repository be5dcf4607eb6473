package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/meridian-his/meridian-his/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	require.Equal(t, 3, cfg.StockAllocRetries)
	require.Equal(t, 90, cfg.StockExpiryWindowDays)
	require.Equal(t, 720*time.Hour, cfg.IdempotencyRetention)
	require.False(t, cfg.IsProduction())
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STOCK_EXPIRY_WINDOW_DAYS", "30")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 30, cfg.StockExpiryWindowDays)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestNewLoggerFormat(t *testing.T) {
	prod := NewLogger(&Config{AppEnv: "production", LogFormat: "pretty"})
	_, ok := prod.Handler().(*slog.JSONHandler)
	require.True(t, ok, "production always logs JSON")

	dev := NewLogger(&Config{AppEnv: "development", LogFormat: "pretty"})
	_, ok = dev.Handler().(*slog.TextHandler)
	require.True(t, ok)
}
