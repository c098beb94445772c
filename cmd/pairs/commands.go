package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gregtusar/pairs/api"
	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/backtest"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/gregtusar/pairs/pkg/notify"
	"github.com/gregtusar/pairs/pkg/report"
	"github.com/gregtusar/pairs/pkg/scanner"
	pairsignal "github.com/gregtusar/pairs/pkg/signal"
	"github.com/gregtusar/pairs/pkg/trader"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newScanCmd() *cobra.Command {
	var (
		maxSymbols int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Test every pair of the symbol universe for cointegration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			if maxSymbols <= 0 {
				maxSymbols = cfg.Scan.MaxSymbols
			}
			if output == "" {
				output = cfg.Output.ScanPath()
			}

			client := newBinance(cfg, logger, nil)
			symbols, err := client.SortedUniverse(ctx, maxSymbols)
			if err != nil {
				return err
			}

			batch := newScanner(cfg, client, logger, nil).Scan(ctx, symbols)
			cointegrated := batch.Cointegrated()
			scanner.SortForExport(cointegrated)

			if err := report.WriteScan(output, cointegrated); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"file":         output,
				"cointegrated": len(cointegrated),
				"failed":       len(batch.Failed()),
			}).Info("Scan results saved")
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSymbols, "max-symbols", 0, "number of perpetual symbols to scan (default from config)")
	cmd.Flags().StringVar(&output, "output", "", "scan results CSV (default from config)")
	return cmd
}

func newRankCmd() *cobra.Command {
	var input, output string
	var top int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank cointegrated pairs and keep the top selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = cfg.Output.ScanPath()
			}
			if output == "" {
				output = cfg.Output.RankingPath()
			}
			if top <= 0 {
				top = cfg.Ranking.TopK
			}

			results, err := report.ReadScan(input)
			if err != nil {
				return err
			}
			ranking := analytics.Rank(results, cfg.Ranking.MaxHedgeRatio)
			selection := ranking.Top(top)

			if err := report.WriteRanking(output, selection); err != nil {
				return err
			}
			for i, r := range selection {
				logger.WithFields(logrus.Fields{
					"rank":        i + 1,
					"pair":        r.Pair.String(),
					"final_score": r.FinalScore,
					"p_value":     r.PValue,
				}).Info("Selected pair")
			}
			logger.WithFields(logrus.Fields{
				"candidates": len(ranking.Pairs),
				"weights":    ranking.Weights,
				"file":       output,
			}).Info("Ranking saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "scan results CSV (default from config)")
	cmd.Flags().StringVar(&output, "output", "", "ranking CSV (default from config)")
	cmd.Flags().IntVar(&top, "top", 0, "number of pairs to keep (default from config)")
	return cmd
}

func newSignalCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Run one monitoring cycle over the ranked pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			if input == "" {
				input = cfg.Output.RankingPath()
			}

			notifier, closeNotifier := newNotifier(cfg, logger)
			defer closeNotifier()

			candidates, err := report.ReadRanking(input)
			if err != nil {
				err = fmt.Errorf("read ranking: %w", err)
				notifier.Notify(ctx, "Signal generation failed: "+err.Error())
				return err
			}

			positions, closeStore, err := newPositionStore(ctx, cfg)
			if err != nil {
				notifier.Notify(ctx, "Signal generation failed: "+err.Error())
				return err
			}
			defer closeStore()

			monitor := pairsignal.NewMonitor(newBinance(cfg, logger, nil), positions, notifier, signalConfig(cfg), logger, nil)
			cycle, err := monitor.RunCycle(ctx, candidates)
			if err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"cycle_id":       cycle.ID,
				"evaluated":      len(cycle.Signals),
				"failed":         len(cycle.Failures),
				"open_positions": len(cycle.Positions),
			}).Info("Monitoring cycle complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "ranking CSV (default from config)")
	return cmd
}

func newBacktestCmd() *cobra.Command {
	var (
		pairsFlag string
		input     string
		output    string
		framesDir string
		synthetic bool
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest the Z-score entry/exit rules on historical prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			if output == "" {
				output = cfg.Output.BacktestPath()
			}
			if !cmd.Flags().Changed("synthetic") {
				synthetic = cfg.Backtest.Synthetic
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Backtest.Seed
			}

			pairs, err := backtestPairs(pairsFlag, input)
			if err != nil {
				return err
			}

			var source backtest.SeriesSource
			if synthetic {
				source = &backtest.SyntheticProvider{Seeds: backtest.SeedSymbols(symbolsOf(pairs), seed)}
				logger.WithField("seed", seed).Info("Using synthetic random-walk prices")
			} else {
				source = newBinance(cfg, logger, nil)
			}

			runner := backtest.NewRunner(source, backtestConfig(cfg), cfg.Backtest.Interval, cfg.Backtest.Limit, logger, nil)
			summaries := runner.Run(ctx, pairs)
			if err := report.WriteBacktest(output, summaries); err != nil {
				return err
			}

			if framesDir != "" {
				for _, pair := range pairs {
					if err := exportFrame(ctx, runner, pair, framesDir); err != nil {
						logger.WithError(err).WithField("pair", pair.String()).Warn("Failed to export backtest frame")
					}
				}
			}

			logger.WithFields(logrus.Fields{
				"pairs": len(summaries),
				"file":  output,
			}).Info("Backtest summary saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&pairsFlag, "pairs", "", "comma separated pair keys, e.g. BTCUSDT_ETHUSDT (default: ranking file)")
	cmd.Flags().StringVar(&input, "input", "", "ranking CSV to read pairs from (default from config)")
	cmd.Flags().StringVar(&output, "output", "", "summary CSV (default from config)")
	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "write per-pair price/spread/zscore and trade CSVs here")
	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "use seeded random walks instead of exchange prices")
	cmd.Flags().Int64Var(&seed, "seed", 42, "base seed for synthetic prices")
	return cmd
}

func backtestPairs(pairsFlag, input string) ([]models.Pair, error) {
	if pairsFlag != "" {
		var pairs []models.Pair
		for _, key := range strings.Split(pairsFlag, ",") {
			p, err := models.ParsePairKey(strings.TrimSpace(key))
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, p)
		}
		return pairs, nil
	}

	if input == "" {
		input = cfg.Output.RankingPath()
	}
	ranked, err := report.ReadRanking(input)
	if err != nil {
		return nil, fmt.Errorf("read ranking: %w", err)
	}
	pairs := make([]models.Pair, 0, len(ranked))
	for _, r := range ranked {
		if analytics.WithinHedgeLimit(r.HedgeRatio, cfg.Ranking.MaxHedgeRatio) {
			pairs = append(pairs, r.Pair)
		}
	}
	if len(pairs) == 0 {
		return nil, errors.New("no pairs to backtest")
	}
	return pairs, nil
}

// symbolsOf returns the distinct symbols of pairs in sorted order so
// synthetic seeds do not depend on pair order.
func symbolsOf(pairs []models.Pair) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, p := range pairs {
		for _, s := range []string{p.Symbol1, p.Symbol2} {
			if !seen[s] {
				seen[s] = true
				symbols = append(symbols, s)
			}
		}
	}
	sort.Strings(symbols)
	return symbols
}

func exportFrame(ctx context.Context, runner *backtest.Runner, pair models.Pair, dir string) error {
	frame, err := runner.Frame(ctx, pair)
	if err != nil {
		return err
	}
	if err := report.WriteFrame(filepath.Join(dir, pair.Key()+"_frame.csv"), frame); err != nil {
		return err
	}
	trades, err := backtest.Simulate(frame, backtestConfig(cfg))
	if err != nil {
		return err
	}
	return report.WriteTrades(filepath.Join(dir, pair.Key()+"_trades.csv"), trades)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled scans and monitoring cycles with the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewRegistry()
	client := newBinance(cfg, logger, m)

	positions, closeStore, err := newPositionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := notify.NewHub(logger)
	defer hub.Close()
	notifier, closeNotifier := newNotifier(cfg, logger, hub)
	defer closeNotifier()

	pairsTrader := trader.NewPairsTrader(
		client,
		newScanner(cfg, client, logger, m),
		pairsignal.NewMonitor(client, positions, notifier, signalConfig(cfg), logger, m),
		backtest.NewRunner(client, backtestConfig(cfg), cfg.Backtest.Interval, cfg.Backtest.Limit, logger, m),
		positions,
		hub,
		trader.Options{
			MaxSymbols:    cfg.Scan.MaxSymbols,
			TopK:          cfg.Ranking.TopK,
			MaxHedgeRatio: cfg.Ranking.MaxHedgeRatio,
			ScanEvery:     cfg.Scan.Every,
			SignalEvery:   cfg.Signal.Every,
			ScanPath:      cfg.Output.ScanPath(),
			RankingPath:   cfg.Output.RankingPath(),
		},
		logger,
	)

	if err := pairsTrader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pairs trader: %w", err)
	}

	opts := api.Options{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Events:         hub,
	}
	if cfg.Auth.Enabled {
		opts.Auth = api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	}
	apiServer := api.NewServer(pairsTrader, m, opts, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Pairs trader is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server did not shut down cleanly")
	}
	cancel()
	pairsTrader.Stop()

	logger.Info("Pairs trader stopped")
	return nil
}

func newTokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			token, err := api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dashboard", "token subject")
	return cmd
}
