package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/metrics"
	"github.com/eddielth/co2-sensor/mqtt"
	"github.com/eddielth/co2-sensor/pipeline"
	"github.com/eddielth/co2-sensor/reporter"
	"github.com/eddielth/co2-sensor/sensor"
	"github.com/eddielth/co2-sensor/storage"
	"github.com/eddielth/co2-sensor/transformer"
	"github.com/eddielth/co2-sensor/transport"
	"github.com/eddielth/co2-sensor/validator"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "co2-sensor: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, loader, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stdout, "Usage of co2-sensor:\n%s", config.Usage())
		return nil
	}
	if err != nil {
		return err
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath, cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	if cfg.ListPorts {
		return listPorts()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sessionOpts []sensor.Option
	if cfg.StrictKeys {
		sessionOpts = append(sessionOpts, sensor.WithStrictKeys())
	}
	session, err := sensor.Open(transport.Config{
		Device:      cfg.Port,
		BaudRate:    cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	}, sessionOpts...)
	if err != nil {
		return fmt.Errorf("open sensor on %s: %w", cfg.Port, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("close sensor: %v", err)
		}
	}()

	sink, err := reporter.OpenSink(cfg.Log)
	if err != nil {
		return err
	}
	var reporterOpts []reporter.Option
	if cfg.JSONStrict {
		reporterOpts = append(reporterOpts, reporter.WithStrictJSON())
	}
	rep, err := reporter.New(reporter.ParseFormat(cfg.Format), sink, reporterOpts...)
	if err != nil {
		sink.Close()
		return fmt.Errorf("create reporter: %w", err)
	}
	// the sensor is stopped before the output is finalized
	defer func() {
		if err := rep.Close(); err != nil {
			logger.Error("close reporter: %v", err)
		}
	}()
	defer session.Stop()

	store := buildStorage(cfg)
	defer store.Close()

	throttle := pipeline.NewThrottle(cfg.SampleInterval())
	runnerOpts := []pipeline.Option{}
	if cfg.Time {
		runnerOpts = append(runnerOpts, pipeline.WithTimestamps())
	}
	if chain := validator.FromConfig(cfg.Validation); len(chain) > 0 {
		runnerOpts = append(runnerOpts, pipeline.WithValidator(chain))
	}
	var tr *transformer.Transformer
	if cfg.Transformer.Enabled() {
		if tr, err = transformer.New(cfg.Transformer); err != nil {
			return fmt.Errorf("load transformer: %w", err)
		}
		runnerOpts = append(runnerOpts, pipeline.WithTransformer(tr))
	}
	if store.Len() > 0 {
		runnerOpts = append(runnerOpts, pipeline.WithStore(store))
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown metrics server: %v", err)
			}
		}()
	}

	if err := loader.Watch(func(newCfg *config.Config) error {
		throttle.SetInterval(newCfg.SampleInterval())
		logger.Info("sample duration set to %s", throttle.Interval())
		if tr != nil && newCfg.Transformer.Enabled() {
			return tr.Reload(newCfg.Transformer)
		}
		return nil
	}); err != nil {
		logger.Debug("config watch disabled: %v", err)
	} else {
		logger.Info("watching config file for changes")
	}

	logger.Info("reading from %s every %s", cfg.Port, throttle.Interval())
	return pipeline.NewRunner(session, rep, throttle, runnerOpts...).Run(ctx)
}

// buildStorage sets up the optional database and MQTT backends. A backend
// that cannot be reached is logged and skipped.
func buildStorage(cfg *config.Config) *storage.Manager {
	manager := storage.NewManager()

	if cfg.Storage.Database.Enabled {
		db, err := storage.NewDatabaseStorage(cfg.Storage.Database)
		if err != nil {
			logger.Error("database storage disabled: %v", err)
		} else {
			manager.AddBackend(db)
			logger.Info("storing measurements in %s database", cfg.Storage.Database.Type)
		}
	}

	if cfg.Storage.Redis.Enabled {
		rs, err := storage.NewRedisStorage(cfg.Storage.Redis)
		if err != nil {
			logger.Error("Redis storage disabled: %v", err)
		} else {
			manager.AddBackend(rs)
		}
	}

	if cfg.Storage.Webhook.Enabled {
		wh, err := storage.NewWebhookStorage(cfg.Storage.Webhook)
		if err != nil {
			logger.Error("webhook storage disabled: %v", err)
		} else {
			manager.AddBackend(wh)
			logger.Info("posting measurements to %s", cfg.Storage.Webhook.URL)
		}
	}

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.NewPublisher(cfg.MQTT)
		if err == nil {
			err = publisher.Connect()
		}
		if err != nil {
			logger.Error("MQTT publishing disabled: %v", err)
			if publisher != nil {
				publisher.Close()
			}
		} else {
			manager.AddBackend(publisher)
		}
	}
	return manager
}

func listPorts() error {
	ports, err := transport.ListPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(os.Stdout, "no serial ports found")
		return nil
	}
	for _, port := range ports {
		fmt.Fprintln(os.Stdout, port)
	}
	return nil
}
