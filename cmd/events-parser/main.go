package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pribylovaa/go-events-parser/internal/adapters/yolo"
	"github.com/pribylovaa/go-events-parser/internal/browser"
	"github.com/pribylovaa/go-events-parser/internal/config"
	"github.com/pribylovaa/go-events-parser/internal/geocoder"
	"github.com/pribylovaa/go-events-parser/internal/pkg/redact"
	ops "github.com/pribylovaa/go-events-parser/internal/http"
	"github.com/pribylovaa/go-events-parser/internal/publisher"
	"github.com/pribylovaa/go-events-parser/internal/publisher/kafka"
	"github.com/pribylovaa/go-events-parser/internal/service"
	redisstore "github.com/pribylovaa/go-events-parser/internal/storage/redis"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting events-parser", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	redisCtx, redisCancel := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := redisstore.New(redisCtx, cfg.Redis.URL, redisstore.Options{
		SeenPrefix: cfg.Redis.SeenPrefix,
		DataPrefix: cfg.Redis.DataPrefix,
		PayloadTTL: cfg.Redis.PayloadTTL,
	})
	redisCancel()
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		return 1
	}
	defer store.Close()
	log.Info("redis_connected", slog.String("url", redact.URL(cfg.Redis.URL)))

	producer, err := kafka.New(kafka.Options{
		Brokers:         cfg.Kafka.Brokers,
		ClientID:        cfg.Kafka.ClientID,
		Acks:            cfg.Kafka.Acks,
		Idempotence:     cfg.Kafka.Idempotence,
		Linger:          cfg.Kafka.Linger,
		RequestTimeout:  cfg.Kafka.RequestTimeout,
		RetryBackoff:    cfg.Kafka.RetryBackoff,
		DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		FlushTimeout:    cfg.Kafka.FlushTimeout,
	}, log)
	if err != nil {
		log.Error("kafka_producer_failed", slog.String("err", err.Error()))
		return 1
	}
	// Close дожидается доставки (flush) оставшихся сообщений.
	defer func() {
		if err := producer.Close(); err != nil {
			log.Warn("kafka_close_failed", slog.String("err", err.Error()))
		}
	}()
	log.Info("kafka_producer_ready", slog.Any("brokers", cfg.Kafka.Brokers))

	pub := publisher.New(producer, publisher.Options{
		Topic:          cfg.Kafka.Topic,
		Attempts:       cfg.Kafka.Attempts,
		BackoffBase:    cfg.Kafka.BackoffBase,
		AttemptTimeout: cfg.Kafka.DeliveryTimeout,
	})

	b := browser.NewStatic(browser.StaticOptions{
		UserAgent:      cfg.Browser.UserAgent,
		RequestTimeout: cfg.Browser.NavigationTimeout,
	})
	defer b.Close()

	geoClient := &http.Client{Timeout: cfg.Geocoder.Timeout}
	newGeocoder := func() service.CityResolver {
		return geocoder.New(geoClient, geocoder.Options{
			Endpoint:  cfg.Geocoder.URL,
			Language:  cfg.Geocoder.Language,
			UserAgent: cfg.Geocoder.UserAgent,
			QPS:       cfg.Geocoder.QPS,
			Timeout:   cfg.Geocoder.Timeout,
		})
	}

	svc, err := service.New(*cfg, service.Deps{
		Dedup:     store,
		Publisher: pub,
		Browser:   b,
		Navigation: browser.NavOptions{
			Attempts:    cfg.Browser.Attempts,
			Step:        cfg.Browser.RetryStep,
			GotoTimeout: cfg.Browser.NavigationTimeout,
			WaitTimeout: cfg.Browser.WaitTimeout,
		},
	}, newGeocoder, service.Registry{
		yolo.Name: yolo.New,
	})
	if err != nil {
		log.Error("service_init_failed", slog.String("err", err.Error()))
		return 1
	}
	log.Info("service_initialized")

	var ready atomic.Bool
	srv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: ops.NewRouter(ops.Options{
			Logger: log,
			Ready:  ready.Load,
			Status: svc,

			RequestTimeout: 5 * time.Second,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http_listen_start", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
		}
		log.Info("service_stopped")
	}()

	ready.Store(true)

	if cfg.Schedule.Interval == 0 {
		sum, err := svc.RunOnce(rootCtx)
		fmt.Printf("Total events: %d\n", sum.Total())
		if err != nil {
			log.Error("run_failed", slog.String("err", err.Error()))
			return 1
		}
		return 0
	}

	if err := svc.Start(rootCtx); err != nil {
		log.Error("schedule_failed", slog.String("err", err.Error()))
		return 1
	}
	log.Info("shutdown_requested")

	return 0
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
