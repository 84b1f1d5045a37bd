// Package main starts the log shipper binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/ibs-source/logship/internal/clock"
	"github.com/ibs-source/logship/internal/config"
	"github.com/ibs-source/logship/internal/datadog"
	"github.com/ibs-source/logship/internal/hotpath"
	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/metrics"
	"github.com/ibs-source/logship/internal/mqtt"
	"github.com/ibs-source/logship/internal/redis"
	"github.com/ibs-source/logship/internal/sink"
)

// source is an upstream the hot path can drain and close
type source interface {
	hotpath.Source
	io.Closer
}

// services holds everything run has to close on the way out
type services struct {
	source   source
	receipts *mqtt.Client
	sink     *datadog.Sink
	hp       *hotpath.HotPath
}

func run() int {
	logger := log.New()
	logger.Info("Starting log shipper")

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return 1
	}
	logConfig(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	collector, err := newCollector(reg)
	if err != nil {
		logger.Error("Failed to register metrics: %v", err)
		return 1
	}
	if cfg.Metrics.Address != "" {
		srv, err := metrics.Listen(cfg.Metrics.Address, reg, logger)
		if err != nil {
			logger.Error("Failed to start metrics server: %v", err)
			return 1
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	svc, err := initializeServices(cfg, collector, logger)
	if err != nil {
		logger.Error("Failed to initialize services: %v", err)
		return 1
	}
	defer closeServices(svc, logger)

	if err := healthcheck(ctx, cfg, svc.sink, logger); err != nil {
		return 1
	}

	return runMainLoop(ctx, cancel, svc.hp, cfg, logger)
}

func logConfig(cfg *config.Config, logger *log.Logger) {
	logger.Info("Configuration loaded successfully")
	switch cfg.Source.Type {
	case config.SourceRedis:
		logger.Info("Source: redis %s, stream: %q, group: %s, consumer: %s",
			cfg.Redis.Address, cfg.Redis.Stream, cfg.Redis.Group, cfg.Redis.Consumer)
	case config.SourceMQTT:
		logger.Info("Source: mqtt %s, topic: %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	if cfg.MQTT.ReceiptTopic != "" {
		logger.Info("Receipts: mqtt %s, topic: %s", cfg.MQTT.Broker, cfg.MQTT.ReceiptTopic)
	}
	logger.Info("Sink: %s, encoding: %s, compression: %s",
		cfg.Sink.Endpoint, cfg.Sink.Encoding.Codec, cfg.Sink.Compression.Type)
	logger.Info("Pipeline: Buffer=%d", cfg.Pipeline.BufferCapacity)
}

func newCollector(reg *prometheus.Registry) (*metrics.Collector, error) {
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return metrics.NewCollector(reg)
}

func initializeServices(cfg *config.Config, collector *metrics.Collector, logger *log.Logger) (*services, error) {
	svc := &services{}

	src, err := newSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.source = src

	observers := sink.Observers{collector}
	if cfg.MQTT.ReceiptTopic != "" {
		// a distinct client ID keeps the receipt connection from taking over
		// the persistent session of the mqtt source
		client, err := mqtt.NewClient(&cfg.MQTT, mqtt.Options{
			ClientID: cfg.MQTT.ClientID + "-receipts-" + uuid.NewString()[:8],
		}, logger)
		if err != nil {
			closeServices(svc, logger)
			return nil, fmt.Errorf("receipt publisher: %w", err)
		}
		svc.receipts = client
		observers = append(observers, mqtt.NewReceiptPublisher(client, cfg.MQTT.ReceiptTopic, logger))
		logger.Info("Publishing batch receipts to %s", cfg.MQTT.ReceiptTopic)
	}

	s, err := datadog.New(datadog.Options{
		Config:       cfg.Sink,
		DrainTimeout: cfg.Pipeline.DrainTimeout,
		Clock:        clock.Real(),
		Logger:       logger,
		Observer:     observers,
		Attempts:     collector,
	})
	if err != nil {
		closeServices(svc, logger)
		return nil, err
	}
	svc.sink = s

	svc.hp = hotpath.New(src, s, cfg.Pipeline.BufferCapacity, logger)
	return svc, nil
}

func newSource(cfg *config.Config, logger *log.Logger) (source, error) {
	switch cfg.Source.Type {
	case config.SourceRedis:
		client, err := redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("redis source: %w", err)
		}
		logger.Info("Connected to Redis")
		return redis.NewSource(client, &cfg.Redis, cfg.Pipeline.ErrorBackoff, logger), nil

	case config.SourceMQTT:
		client, err := mqtt.NewClient(&cfg.MQTT, mqtt.Options{ManualAck: true}, logger)
		if err != nil {
			return nil, fmt.Errorf("mqtt source: %w", err)
		}
		logger.Info("Connected to MQTT broker")
		return mqtt.NewSource(client, cfg.MQTT.Topic, logger), nil
	}
	return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
}

func closeServices(svc *services, logger *log.Logger) {
	if svc.sink != nil {
		if err := svc.sink.Close(); err != nil {
			logger.Error("Error closing sink: %v", err)
		}
	}
	if svc.receipts != nil {
		if err := svc.receipts.Close(); err != nil {
			logger.Error("Error closing receipt publisher: %v", err)
		}
	}
	if svc.source != nil {
		if err := svc.source.Close(); err != nil {
			logger.Error("Error closing source: %v", err)
		}
	}
}

// healthcheck probes the destination once when enabled. A failure only stops
// startup in fail-fast mode.
func healthcheck(ctx context.Context, cfg *config.Config, s sink.Sink, logger *log.Logger) error {
	if !cfg.Pipeline.Healthcheck {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.HealthcheckTimeout)
	defer cancel()

	err := s.Healthcheck(ctx)
	switch {
	case err == nil:
		logger.Info("Sink healthcheck passed")
		return nil
	case cfg.Pipeline.HealthcheckFailFast:
		logger.Error("Sink healthcheck failed: %v", err)
		return err
	default:
		logger.Warn("Sink healthcheck failed, continuing: %v", err)
		return nil
	}
}

func runMainLoop(ctx context.Context, cancel context.CancelFunc, hp *hotpath.HotPath, cfg *config.Config, logger *log.Logger) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() {
		done <- hp.Run(ctx)
	}()

	logger.Info("Hot path orchestrator started")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
		cancel()
		return handleGracefulShutdown(done, cfg, logger)

	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Hot path error: %v", err)
			return 1
		}
		logger.Info("Shipper stopped")
		return 0
	}
}

// handleGracefulShutdown waits for the hot path to flush and drain, bounded
// by the shutdown timeout
func handleGracefulShutdown(done <-chan error, cfg *config.Config, logger *log.Logger) int {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Hot path error during shutdown: %v", err)
			return 1
		}
		logger.Info("Graceful shutdown completed")
		logger.Info("Shipper stopped")
		return 0
	case <-shutdownCtx.Done():
		logger.Error("Shutdown timeout exceeded")
		return 1
	}
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
