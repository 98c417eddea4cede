package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chainflow/config"
	"chainflow/internal/dashboard"
	"chainflow/internal/engine"
	"chainflow/internal/events"
	"chainflow/internal/market"
	"chainflow/internal/metrics"
	"chainflow/internal/scheduler"
	"chainflow/internal/source"
	"chainflow/internal/store"
	"chainflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single pass and exit, ignoring the schedule")
	force := flag.Bool("force", false, "Run even when the market is closed")

	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithEnv("APP_ENV", "LOG_LEVEL").WithFields(logger.Fields{
		"service": cfg.Chainflow.Name,
		"version": cfg.Chainflow.Version,
		"env":     config.AppEnvironment(),
		"mode":    cfg.Mode,
		"backend": cfg.Storage.Backend,
	}).Info("starting chainflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	recorder := metrics.NewRecorder(log)

	dash := dashboard.NewServer(cfg.Dashboard, cfg.Chainflow.Name, recorder.Handler(), log)
	if dash != nil {
		go func() {
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Warn("dashboard server failed")
			}
		}()
	}

	var cw *metrics.CloudWatch
	if cfg.Metrics.CloudWatch.Enabled {
		cw, err = metrics.NewCloudWatch(ctx, cfg.Metrics.CloudWatch)
		if err != nil {
			log.WithError(err).Warn("CloudWatch metrics disabled")
		} else {
			defer cw.Close()
		}
	}

	st, err := store.New(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Error("failed to create table store")
		os.Exit(1)
	}
	if c, ok := st.(io.Closer); ok {
		defer c.Close()
	}

	src, err := source.New(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create market data source")
		os.Exit(1)
	}

	opts := []engine.Option{engine.WithObserver(recorder), engine.WithLogger(log)}
	if cfg.Events.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Events.Kafka)
		if err != nil {
			log.WithError(err).Error("failed to create kafka publisher")
			os.Exit(1)
		}
		if err := publisher.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start kafka publisher")
			os.Exit(1)
		}
		defer publisher.Close()
		opts = append(opts, engine.WithPublisher(publisher))
	}

	eng, err := engine.New(cfg, src, st, opts...)
	if err != nil {
		log.WithError(err).Error("failed to create engine")
		os.Exit(1)
	}

	var gate *market.Gate
	if cfg.MarketHours.Enabled && !*force {
		gate, err = market.NewGate(cfg.MarketHours)
		if err != nil {
			log.WithError(err).Error("invalid market hours")
			os.Exit(1)
		}
	}

	job := func(ctx context.Context) {
		if gate != nil && !gate.IsOpen(time.Now()) {
			log.WithComponent("main").Info("market is closed, skipping run")
			return
		}
		report := eng.Run(ctx, cfg.Symbols)
		dash.RecordRun(report)
		if cw != nil {
			if err := cw.Flush(ctx); err != nil {
				log.WithError(err).Warn("failed to publish CloudWatch metrics")
			}
		}
	}

	spec := cfg.Schedule
	if *once {
		spec = ""
	}
	sched, err := scheduler.New(spec, job)
	if err != nil {
		log.WithError(err).Error("invalid schedule")
		os.Exit(1)
	}
	if err := sched.Run(ctx); err != nil {
		log.WithError(err).Error("scheduler failed")
		os.Exit(1)
	}

	log.Info("chainflow stopped")
}
