package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coinquest/config"
	"coinquest/engine"
	"coinquest/internal/channel"
	"coinquest/logger"
	"coinquest/models"
	"coinquest/processor"
	"coinquest/reader/binance"
	"coinquest/sentinel"
	"coinquest/sink"
	"coinquest/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Coinquest.Name,
		"version": cfg.Coinquest.Version,
	}).Info("starting coinquest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "", cfg.Logging.DashboardName)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.TickerBuffer,
		cfg.Channels.TradeBuffer,
		cfg.Channels.ArchiveBuffer,
	)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx)

	feed := binance.NewFeed(cfg, channels.Feed)
	for _, symbol := range cfg.Feed.TradeSymbols {
		feed.Subscribe(strings.ToLower(symbol) + "@trade")
	}

	aggregator := processor.NewAggregator(cfg, channels.Feed)

	sinks := sink.NewLogSink()
	positions := engine.NewPositions(cfg, sinks)
	mining := engine.NewMining(cfg, sinks)

	aggregator.SubscribeSnapshots(positions.ApplySnapshot)

	go statusWorker(ctx, log, positions, mining)

	var archiveWriter *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archiveWriter, err = writer.NewArchiveWriter(cfg, channels.Archive)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
		aggregator.SubscribeTrades(func(trade models.Trade) {
			channels.Archive.SendRecord(ctx, models.ArchiveRecord{
				Kind:      "trade",
				Symbol:    trade.Symbol,
				Price:     trade.Price,
				Quantity:  trade.Quantity,
				ValueUSD:  trade.Price * trade.Quantity,
				Timestamp: trade.Time.UnixMilli(),
			})
		})
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	var archiveCh = channels.Archive
	if archiveWriter == nil {
		archiveCh = nil
	}
	monitor := sentinel.NewMonitor(cfg, aggregator, sinks, sinks, archiveCh)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Start(ctx); err != nil {
			log.WithError(err).Warn("feed failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := aggregator.Start(ctx); err != nil {
			log.WithError(err).Warn("aggregator failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := monitor.Start(ctx); err != nil {
			log.WithError(err).Warn("sentinel failed to start")
		}
	}()

	if archiveWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiveWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("archive writer failed to start")
			}
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if archiveWriter != nil {
		log.Info("stopping archive writer")
		archiveWriter.Stop()
	}

	log.Info("stopping sentinel")
	monitor.Stop()

	log.Info("stopping aggregator")
	aggregator.Stop()

	log.Info("stopping feed")
	feed.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("coinquest stopped")
}

// statusWorker periodically logs the derived financial state so a headless
// deployment is observable without attaching a client.
func statusWorker(ctx context.Context, log *logger.Log, positions *engine.Positions, mining *engine.Mining) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.WithComponent("main").WithFields(logger.Fields{
				"balance":        positions.Balance(),
				"open_positions": len(positions.List()),
				"mined_earned":   mining.Earned(),
				"mined_progress": mining.Progress(),
			}).Info("state report")
		}
	}
}
