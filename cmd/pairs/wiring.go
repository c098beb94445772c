package main

import (
	"context"
	"fmt"

	"github.com/gregtusar/pairs/internal/config"
	"github.com/gregtusar/pairs/pkg/backtest"
	"github.com/gregtusar/pairs/pkg/binance"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/notify"
	"github.com/gregtusar/pairs/pkg/scanner"
	pairsignal "github.com/gregtusar/pairs/pkg/signal"
	"github.com/gregtusar/pairs/pkg/store"
	"github.com/sirupsen/logrus"
)

type closer func()

func newBinance(cfg *config.Config, logger *logrus.Logger, m *metrics.Registry) *binance.Client {
	return binance.NewClient(binance.Options{
		BaseURL:           cfg.Binance.BaseURL,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
		Timeout:           cfg.Binance.Timeout,
	}, logger, m)
}

func newScanner(cfg *config.Config, provider scanner.PriceProvider, logger *logrus.Logger, m *metrics.Registry) *scanner.Scanner {
	return scanner.New(provider, scanner.Config{
		Interval:    cfg.Scan.Interval,
		Limit:       cfg.Scan.Limit,
		Workers:     cfg.Scan.Workers,
		KalmanDelta: cfg.Scan.KalmanDelta,
	}, logger, m)
}

func signalConfig(cfg *config.Config) pairsignal.Config {
	return pairsignal.Config{
		Thresholds: pairsignal.Thresholds{
			Entry: cfg.Signal.EntryThreshold,
			Exit:  cfg.Signal.ExitThreshold,
		},
		Interval:      cfg.Signal.Interval,
		Limit:         cfg.Signal.Limit,
		MaxHedgeRatio: cfg.Ranking.MaxHedgeRatio,
	}
}

func backtestConfig(cfg *config.Config) backtest.Config {
	return backtest.Config{
		EntryThreshold: cfg.Backtest.EntryThreshold,
		ExitThreshold:  cfg.Backtest.ExitThreshold,
	}
}

// newPositionStore returns the configured store and a function releasing it.
func newPositionStore(ctx context.Context, cfg *config.Config) (pairsignal.PositionStore, closer, error) {
	switch cfg.Store.Type {
	case "redis":
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Key:      cfg.Store.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	case "file":
		return store.NewFileStore(cfg.Store.Path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// newNotifier fans out to every configured channel plus any extra ones,
// falling back to the log.
func newNotifier(cfg *config.Config, logger *logrus.Logger, extra ...notify.Notifier) (notify.Notifier, closer) {
	var channels notify.Multi
	cleanup := func() {}

	if cfg.Notify.Telegram.Enabled() {
		channels = append(channels, notify.NewTelegram(cfg.Notify.Telegram.BaseURL, cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID))
	}
	if cfg.Notify.NATS.URL != "" {
		nc, err := notify.ConnectNATS(cfg.Notify.NATS.URL, cfg.Notify.NATS.Subject)
		if err != nil {
			logger.WithError(err).Warn("NATS notifications disabled")
		} else {
			channels = append(channels, nc)
			cleanup = nc.Close
		}
	}
	channels = append(channels, extra...)

	if len(channels) == 0 {
		logger.Warn("No notification channel configured, signals are only logged")
		return notify.Log{Logger: logger}, cleanup
	}
	return channels, cleanup
}
