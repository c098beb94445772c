package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://fapi.binance.com", cfg.Binance.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Binance.Timeout)
	assert.Equal(t, "1h", cfg.Scan.Interval)
	assert.Equal(t, 200, cfg.Scan.Limit)
	assert.Equal(t, 50, cfg.Scan.MaxSymbols)
	assert.Equal(t, 1e-5, cfg.Scan.KalmanDelta)
	assert.Equal(t, 10000.0, cfg.Ranking.MaxHedgeRatio)
	assert.Equal(t, 5, cfg.Ranking.TopK)
	assert.Equal(t, 2.0, cfg.Signal.EntryThreshold)
	assert.Equal(t, 0.5, cfg.Signal.ExitThreshold)
	assert.Equal(t, 0.0, cfg.Backtest.ExitThreshold)
	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, filepath.Join("output", "top_5_pairs.csv"), cfg.Output.RankingPath())
	assert.Equal(t, "pairs-telegram-token", cfg.GCP.SecretNames.TelegramToken)
	assert.False(t, cfg.Notify.Telegram.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan:
  max_symbols: 20
  every: 6h
signal:
  exit_threshold: 0.25
store:
  type: redis
  redis:
    addr: redis:6379
notify:
  telegram:
    chat_id: "-100"
`), 0o644))

	t.Setenv("TELEGRAM_TOKEN", "bot-token")
	t.Setenv("BINANCE_BASE_URL", "http://localhost:9999")
	t.Setenv("REDIS_PASSWORD", "pw")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Scan.MaxSymbols)
	assert.Equal(t, 6*time.Hour, cfg.Scan.Every)
	assert.Equal(t, 0.25, cfg.Signal.ExitThreshold)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "pw", cfg.Store.Redis.Password)
	assert.Equal(t, "http://localhost:9999", cfg.Binance.BaseURL)
	assert.True(t, cfg.Notify.Telegram.Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"inverted thresholds", "signal:\n  entry_threshold: 0.4\n"},
		{"unknown store", "store:\n  type: sqlite\n"},
		{"auth without secret", "auth:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

type mapSecrets map[string]string

func (m mapSecrets) GetSecretWithDefault(_ context.Context, name, def string) string {
	if v, ok := m[name]; ok {
		return v
	}
	return def
}

func TestApplySecretsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.GCP.SecretNames.TelegramToken = "tg-token"
	cfg.GCP.SecretNames.TelegramChatID = "tg-chat"
	cfg.GCP.SecretNames.APIAuthSecret = "api"
	cfg.Notify.Telegram.ChatID = "explicit"

	applySecrets(context.Background(), cfg, mapSecrets{
		"tg-token": "from-gcp",
		"tg-chat":  "ignored",
		"api":      "jwt-secret",
	})

	assert.Equal(t, "from-gcp", cfg.Notify.Telegram.Token)
	assert.Equal(t, "explicit", cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "jwt-secret", cfg.Auth.Secret)
	assert.Empty(t, cfg.Store.Redis.Password)
}
