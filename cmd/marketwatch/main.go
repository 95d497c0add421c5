package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/marketwatch/internal/alarm"
	"github.com/rewired-gh/marketwatch/internal/command"
	"github.com/rewired-gh/marketwatch/internal/config"
	"github.com/rewired-gh/marketwatch/internal/logger"
	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/monitor"
	"github.com/rewired-gh/marketwatch/internal/naver"
	"github.com/rewired-gh/marketwatch/internal/notify"
	"github.com/rewired-gh/marketwatch/internal/storage"
	"github.com/rewired-gh/marketwatch/internal/telegram"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "marketwatch",
		Short:        "Korean market watcher with price alarms and breakout notifications",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg, configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(newSearchCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newSearchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Search stock codes by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			client := newNaverClient(cfg)

			results, err := client.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Code, r.Name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketwatch %s\n", version)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newNaverClient(cfg *config.Config) *naver.Client {
	return naver.NewClient(
		cfg.Quote.PollingURL,
		cfg.Quote.FinanceURL,
		cfg.Quote.MobileURL,
		cfg.Quote.UserAgent,
		cfg.Quote.Timeout,
	)
}

func run(cfg *config.Config, configPath string) error {
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", configPath)

	store, err := storage.New(cfg.Storage.MaxNotifications, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()
	if cfg.Storage.Retention > 0 {
		if n, err := store.Prune(context.Background(), time.Now().Add(-cfg.Storage.Retention)); err != nil {
			logger.Warn("Failed to prune notification history: %v", err)
		} else if n > 0 {
			logger.Info("Pruned %d expired notifications", n)
		}
	}

	source := newNaverClient(cfg)
	mkt := market.New()
	alarms := alarm.New()

	if err := restore(cfg, source, mkt, alarms); err != nil {
		return err
	}

	sinks := notify.Multi{store}
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		sinks = append(sinks, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		sinks = append(sinks, notify.LogSink{})
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current cycles...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, command.NewHandler(mkt, alarms, source, store))
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		logger.Info("Serving metrics on %s/metrics", cfg.Metrics.Addr)
	}

	monitorConfig := monitor.Config{
		PollInterval:         cfg.Monitor.PollInterval,
		StateInterval:        cfg.Monitor.StateInterval,
		RateInterval:         cfg.Monitor.RateInterval,
		VolumeInterval:       cfg.Monitor.VolumeInterval,
		Timezone:             cfg.MarketHours.Timezone,
		OpenHour:             cfg.MarketHours.OpenHour,
		CloseHour:            cfg.MarketHours.CloseHour,
		MinDepth:             cfg.Backfill.MinDepth,
		MaxRollbacks:         cfg.Backfill.MaxRollbacks,
		RequestDelay:         cfg.Backfill.RequestDelay,
		ErrorPenalty:         cfg.Backfill.ErrorPenalty,
		ErrorBackoff:         cfg.Backfill.ErrorBackoff,
		RateRange:            cfg.Rate.Range,
		VolumeMinDelta:       cfg.Volume.MinDelta,
		VolumeMultiplier:     cfg.Volume.Multiplier,
		VolumeBaselineWindow: cfg.Volume.BaselineWindow,
		VolumeCooldown:       cfg.Volume.Cooldown,
	}
	mon := monitor.New(mkt, alarms, source, sinks, monitorConfig)

	logger.Info("Starting monitoring service (poll: %v, rate range: %.2f%%, %d instruments, %d alarm codes)",
		cfg.Monitor.PollInterval, cfg.Rate.Range, mkt.Len(), len(alarms.Codes()))

	runErr := mon.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop metrics server: %v", err)
		}
	}

	if err := persist(cfg, mkt, alarms); err != nil {
		logger.Error("Failed to persist state: %v", err)
		return errors.Join(runErr, err)
	}
	logger.Info("Service stopped")
	return runErr
}

// restore loads watchlists and alarms from disk and seeds the registry.
func restore(cfg *config.Config, source monitor.Source, mkt *market.Market, alarms *alarm.Registry) error {
	watchlist, err := storage.LoadWatchlist(cfg.Storage.WatchlistDir)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInitialization, err)
	}

	var insts []models.Instrument
	for _, code := range cfg.Monitor.SeedIndices {
		insts = append(insts, models.Instrument{Code: code, Kind: models.KindIndex})
	}
	for _, code := range watchlist.Indices {
		insts = append(insts, models.Instrument{Code: code, Kind: models.KindIndex})
	}
	for _, code := range watchlist.Stocks {
		insts = append(insts, models.Instrument{Code: code, Kind: models.KindStock})
	}
	if err := monitor.Seed(context.Background(), mkt, source, insts); err != nil {
		return err
	}

	saved, err := storage.LoadAlarms(cfg.Storage.AlarmDir)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInitialization, err)
	}
	for code, targets := range saved {
		for _, t := range targets {
			alarms.Set(code, t)
		}
		logger.Info("Loaded %d alarms for %s", len(targets), code)
	}
	return nil
}

// persist writes watchlists and alarms back to disk.
func persist(cfg *config.Config, mkt *market.Market, alarms *alarm.Registry) error {
	var w storage.Watchlist
	for _, inst := range mkt.CodesWithKind() {
		if inst.Kind == models.KindIndex {
			w.Indices = append(w.Indices, inst.Code)
		} else {
			w.Stocks = append(w.Stocks, inst.Code)
		}
	}
	if err := storage.SaveWatchlist(cfg.Storage.WatchlistDir, w); err != nil {
		return err
	}
	return storage.SaveAlarms(cfg.Storage.AlarmDir, alarms.Snapshot())
}
