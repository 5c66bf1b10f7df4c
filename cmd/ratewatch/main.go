package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hgiraudo/rofex/api"
	"github.com/hgiraudo/rofex/internal/blotter"
	"github.com/hgiraudo/rofex/internal/config"
	"github.com/hgiraudo/rofex/internal/console"
	"github.com/hgiraudo/rofex/pkg/byma"
	"github.com/hgiraudo/rofex/pkg/models"
	"github.com/hgiraudo/rofex/pkg/quotes"
	"github.com/hgiraudo/rofex/pkg/rofex"
	"github.com/hgiraudo/rofex/pkg/watch"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ratewatch",
		Short: "ROFEX implied-rate arbitrage monitor",
		Long:  `Watches futures against their underlyings, tracks the implied borrow and lend rates per maturity, and trades cash-and-carry opportunities when borrowing is cheaper than lending`,
		Run:   runWatcher,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runWatcher(cmd *cobra.Command, args []string) {
	logger = logrus.New()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broker client for futures quotes and the futures order legs
	broker := rofex.NewClient(rofex.Config{
		Environment:       cfg.Rofex.Environment,
		Username:          cfg.Rofex.Username,
		Password:          cfg.Rofex.Password,
		Account:           cfg.Rofex.Account,
		RequestsPerSecond: cfg.Rofex.RequestsPerSecond,
	}, logger)
	if err := broker.Login(ctx); err != nil {
		logger.WithError(err).Fatal("Broker login failed")
	}
	logger.WithField("environment", cfg.Rofex.Environment).Info("Broker login OK")

	trades, err := blotter.Open(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open trade blotter")
	}
	defer trades.Close()

	board := console.NewBoard(os.Stdout)

	registry := watch.NewRegistry(watch.Config{
		TransactionCost: cfg.Trading.TransactionCost,
		OnMissingQuote:  watch.MissingQuotePolicy(cfg.Trading.OnMissingQuote),
		FutureSink:      broker,
		SpotSink:        byma.NewSimulator(logger),
		Recorder:        watch.MultiRecorder{trades, board},
	}, logger)

	if err := buildWatchlist(registry, cfg); err != nil {
		logger.WithError(err).Fatal("Failed to build watch list")
	}
	logger.WithField("pairs", len(registry.WatchSymbols())).Info("Watch list loaded")

	checkWatchlistListed(ctx, broker, registry.WatchSymbols(), logger)

	// Market data feed
	stream := rofex.NewMarketDataStream(broker, func(tick models.MarketTick) {
		registry.ProcessTick(ctx, tick)
	}, logger)
	stream.SetReconnectPolicy(
		time.Duration(cfg.Rofex.ReconnectDelay)*time.Second,
		cfg.Rofex.MaxReconnects)

	if err := stream.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect market data stream")
	}
	defer stream.Close()
	if err := stream.Subscribe(registry.WatchSymbols()); err != nil {
		logger.WithError(err).Fatal("Failed to subscribe market data")
	}

	apiServer := api.NewServer(registry, trades, logger, cfg.Server.Port)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Periodic console board
	go func() {
		interval := time.Duration(cfg.Trading.BoardInterval) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				board.RenderRates(registry.Snapshot())
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Rate watcher is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")
	cancel()

	logger.Info("Rate watcher stopped")
}

// checkWatchlistListed warns about watch-list futures the market does not
// currently quote; their subscriptions would never produce a tick.
func checkWatchlistListed(ctx context.Context, broker *rofex.Client, watched []string, logger *logrus.Logger) {
	listed, err := broker.Instruments(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not fetch instrument list, skipping watch-list check")
		return
	}

	known := make(map[string]bool, len(listed))
	for _, symbol := range listed {
		known[symbol] = true
	}
	for _, symbol := range watched {
		if !known[symbol] {
			logger.WithField("symbol", symbol).Warn("Watched future is not listed on the market")
		}
	}
}

// buildWatchlist registers every configured pair, choosing the spot quote
// source from the underlying's class. Rows without an explicit class fall
// back on the DLR-prefix heuristic for currency futures.
func buildWatchlist(registry *watch.Registry, cfg *config.Config) error {
	dollar := quotes.NewDollarClient(cfg.Quotes.DollarURL, cfg.Quotes.DollarBoard,
		cfg.Rofex.RequestsPerSecond)
	yahoo := quotes.NewYahooClient(cfg.Quotes.YahooURL, cfg.Rofex.RequestsPerSecond)

	for _, item := range cfg.Watchlist {
		var maturity time.Time
		if item.Maturity != "" {
			parsed, err := time.Parse("02-01-2006", item.Maturity)
			if err != nil {
				return fmt.Errorf("watch pair %s: maturity %q: %w", item.Future, item.Maturity, err)
			}
			maturity = parsed
		}

		future, err := models.NewFuture(item.Future, maturity)
		if err != nil {
			return fmt.Errorf("watch pair %s: %w", item.Future, err)
		}

		class := item.Class
		if class == "" {
			if strings.HasPrefix(item.Future, "DLR") {
				class = "currency"
			} else {
				class = "equity"
			}
		}

		var underlying models.Instrument
		var source watch.QuoteSource
		switch class {
		case "currency":
			underlying = models.NewCurrency(item.Underlying)
			source = dollar
		case "equity":
			underlying = models.NewEquity(item.Underlying)
			source = yahoo
		default:
			return fmt.Errorf("watch pair %s: unknown class %q", item.Future, class)
		}

		if err := registry.Watch(future, underlying, source); err != nil {
			return fmt.Errorf("watch pair %s: %w", item.Future, err)
		}
	}
	return nil
}
