package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gregtusar/pairs/pkg/secrets"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Ranking  RankingConfig  `mapstructure:"ranking"`
	Signal   SignalConfig   `mapstructure:"signal"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Store    StoreConfig    `mapstructure:"store"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type BinanceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type ScanConfig struct {
	Interval    string        `mapstructure:"interval"`
	Limit       int           `mapstructure:"limit"`
	MaxSymbols  int           `mapstructure:"max_symbols"`
	Workers     int           `mapstructure:"workers"`
	KalmanDelta float64       `mapstructure:"kalman_delta"`
	Every       time.Duration `mapstructure:"every"`
}

type RankingConfig struct {
	MaxHedgeRatio float64 `mapstructure:"max_hedge_ratio"`
	TopK          int     `mapstructure:"top_k"`
}

type SignalConfig struct {
	EntryThreshold float64       `mapstructure:"entry_threshold"`
	ExitThreshold  float64       `mapstructure:"exit_threshold"`
	Interval       string        `mapstructure:"interval"`
	Limit          int           `mapstructure:"limit"`
	Every          time.Duration `mapstructure:"every"`
}

type BacktestConfig struct {
	EntryThreshold float64 `mapstructure:"entry_threshold"`
	ExitThreshold  float64 `mapstructure:"exit_threshold"`
	Interval       string  `mapstructure:"interval"`
	Limit          int     `mapstructure:"limit"`
	Synthetic      bool    `mapstructure:"synthetic"`
	Seed           int64   `mapstructure:"seed"`
}

type StoreConfig struct {
	Type  string      `mapstructure:"type"` // "file" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

type TelegramConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
	ChatID  string `mapstructure:"chat_id"`
}

func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	ScanFile     string `mapstructure:"scan_file"`
	RankingFile  string `mapstructure:"ranking_file"`
	BacktestFile string `mapstructure:"backtest_file"`
}

func (o OutputConfig) ScanPath() string     { return filepath.Join(o.Dir, o.ScanFile) }
func (o OutputConfig) RankingPath() string  { return filepath.Join(o.Dir, o.RankingFile) }
func (o OutputConfig) BacktestPath() string { return filepath.Join(o.Dir, o.BacktestFile) }

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

type AuthConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SecretSource resolves a named secret, falling back to a default.
type SecretSource interface {
	GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pairs-trader")
	}

	v.SetEnvPrefix("PAIRS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		sm, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
		defer sm.Close()
		applySecrets(ctx, &config, sm)
		logger.Info("Successfully loaded secrets from GCP Secret Manager")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("binance.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.requests_per_second", 10)
	v.SetDefault("binance.timeout", "30s")

	v.SetDefault("scan.interval", "1h")
	v.SetDefault("scan.limit", 200)
	v.SetDefault("scan.max_symbols", 50)
	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.kalman_delta", 1e-5)
	v.SetDefault("scan.every", "24h")

	v.SetDefault("ranking.max_hedge_ratio", 10000)
	v.SetDefault("ranking.top_k", 5)

	v.SetDefault("signal.entry_threshold", 2.0)
	v.SetDefault("signal.exit_threshold", 0.5)
	v.SetDefault("signal.interval", "1h")
	v.SetDefault("signal.limit", 200)
	v.SetDefault("signal.every", "1h")

	v.SetDefault("backtest.entry_threshold", 2.0)
	v.SetDefault("backtest.exit_threshold", 0.0)
	v.SetDefault("backtest.interval", "1h")
	v.SetDefault("backtest.limit", 500)
	v.SetDefault("backtest.synthetic", false)
	v.SetDefault("backtest.seed", 42)

	v.SetDefault("store.type", "file")
	v.SetDefault("store.path", "./data/positions.json")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", "pairs:positions")

	v.SetDefault("notify.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("notify.nats.subject", "pairs.signals")

	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.scan_file", "cointegrated_pairs.csv")
	v.SetDefault("output.ranking_file", "top_5_pairs.csv")
	v.SetDefault("output.backtest_file", "backtest_summary.csv")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.telegram_token", secretNames.TelegramToken)
	v.SetDefault("gcp.secret_names.telegram_chat_id", secretNames.TelegramChatID)
	v.SetDefault("gcp.secret_names.api_auth_secret", secretNames.APIAuthSecret)
	v.SetDefault("gcp.secret_names.redis_password", secretNames.RedisPassword)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "pairs-trader")
	v.SetDefault("auth.token_ttl", "24h")
}

func overrideFromEnv(config *Config) {
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		config.Notify.Telegram.Token = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		config.Notify.Telegram.ChatID = chatID
	}
	if baseURL := os.Getenv("BINANCE_BASE_URL"); baseURL != "" {
		config.Binance.BaseURL = baseURL
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.Notify.NATS.URL = natsURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Store.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Store.Redis.Password = password
	}
	if secret := os.Getenv("API_AUTH_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
	if credentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credentials != "" && config.GCP.CredentialsFile == "" {
		config.GCP.CredentialsFile = credentials
	}
}

// applySecrets fills credentials that are still empty.
func applySecrets(ctx context.Context, config *Config, src SecretSource) {
	names := config.GCP.SecretNames

	if config.Notify.Telegram.Token == "" {
		config.Notify.Telegram.Token = src.GetSecretWithDefault(ctx, names.TelegramToken, "")
	}
	if config.Notify.Telegram.ChatID == "" {
		config.Notify.Telegram.ChatID = src.GetSecretWithDefault(ctx, names.TelegramChatID, "")
	}
	if config.Auth.Secret == "" {
		config.Auth.Secret = src.GetSecretWithDefault(ctx, names.APIAuthSecret, "")
	}
	if config.Store.Redis.Password == "" {
		config.Store.Redis.Password = src.GetSecretWithDefault(ctx, names.RedisPassword, "")
	}
}

func (c *Config) Validate() error {
	if c.Signal.ExitThreshold < 0 || c.Signal.EntryThreshold <= c.Signal.ExitThreshold {
		return fmt.Errorf("signal thresholds: entry %.3f must exceed exit %.3f >= 0",
			c.Signal.EntryThreshold, c.Signal.ExitThreshold)
	}
	if c.Backtest.EntryThreshold <= 0 {
		return fmt.Errorf("backtest entry threshold must be positive, got %.3f", c.Backtest.EntryThreshold)
	}
	if c.Ranking.MaxHedgeRatio <= 0 {
		return fmt.Errorf("ranking.max_hedge_ratio must be positive")
	}
	switch c.Store.Type {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth is enabled but no secret is configured")
	}
	return nil
}
