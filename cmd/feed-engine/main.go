package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intelsphere/apex-feeds/internal/api"
	"github.com/intelsphere/apex-feeds/internal/broadcast"
	"github.com/intelsphere/apex-feeds/internal/collectors"
	"github.com/intelsphere/apex-feeds/internal/config"
	"github.com/intelsphere/apex-feeds/internal/dispatch"
	"github.com/intelsphere/apex-feeds/internal/engine"
	"github.com/intelsphere/apex-feeds/internal/feeds"
	"github.com/intelsphere/apex-feeds/internal/metrics"
	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

const collectorTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting feed engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	defs, err := config.LoadDefinitions(cfg.Definitions.Path)
	if err != nil {
		logger.Error("failed to load feed definitions", slog.String("path", cfg.Definitions.Path), slog.Any("error", err))
		os.Exit(1)
	}

	clock := utils.RealClock()

	registry := feeds.NewRegistry()
	for _, def := range defs.Feeds {
		var collector feeds.Collector
		if def.Simulated {
			collector = collectors.NewSimulatedCollector(models.FeedCategory(def.Category), clock)
		} else {
			collector = collectors.NewHTTPCollector(def.Endpoint, collectorTimeout, nil)
		}
		if _, err := registry.Register(feeds.FeedConfig{
			ID:              def.ID,
			Name:            def.Name,
			Category:        models.FeedCategory(def.Category),
			Endpoint:        def.Endpoint,
			PollInterval:    def.PollInterval(),
			Priority:        models.FeedPriority(def.Priority),
			GeographicScope: def.GeographicScope,
			LanguageFilters: def.LanguageFilters,
			Classification:  models.Classification(def.Classification),
			Reliability:     def.Reliability,
			Throughput:      def.Throughput,
			Collector:       collector,
		}); err != nil {
			logger.Warn("feed registration rejected", slog.String("feed", def.ID), slog.Any("error", err))
		}
	}

	rules := make([]models.CorrelationRule, 0, len(defs.Rules))
	for _, def := range defs.Rules {
		rules = append(rules, def.ToRule())
	}

	hub := broadcast.NewHub(cfg.Broadcast.SubscriberQueue, logger)
	publishers := []engine.Publisher{hub}

	var natsBridge *broadcast.NATSBridge
	if cfg.Broadcast.NATSEnabled && cfg.Broadcast.NATSURL != "" {
		bridge, err := broadcast.NewNATSBridge(cfg.Broadcast.NATSURL, cfg.Broadcast.NATSSubject, cfg.Broadcast.NATSTimeout, logger)
		if err != nil {
			logger.Warn("nats bridge unavailable", slog.Any("error", err))
		} else {
			natsBridge = bridge
			publishers = append(publishers, bridge)
		}
	}
	if natsBridge != nil {
		defer natsBridge.Close()
	}

	var notifier dispatch.Notifier
	if cfg.Dispatch.WebhookEndpoint != "" {
		notifier = dispatch.NewWebhookNotifier(cfg.Dispatch.WebhookEndpoint, cfg.Dispatch.Timeout)
	}
	dispatcher := dispatch.NewDispatcher(notifier, logger, cfg.Dispatch.Timeout)

	processor := engine.New(cfg.Engine, logger, clock, registry, rules, dispatcher, hub.Count, publishers...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start engine", slog.Any("error", err))
		os.Exit(1)
	}

	server := api.NewServer(cfg.Server, logger, processor, hub)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", slog.Any("error", err))
	}
	cancel()

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	processor.Stop()

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("feed engine stopped")
}
