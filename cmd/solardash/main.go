package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/solardash/internal/config"
	"codeberg.org/mutker/solardash/internal/display"
	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/history"
	"codeberg.org/mutker/solardash/internal/logger"
	"codeberg.org/mutker/solardash/internal/mqtt"
	"codeberg.org/mutker/solardash/internal/pid"
	"codeberg.org/mutker/solardash/internal/poller"
	"codeberg.org/mutker/solardash/internal/telemetry"
	"github.com/spf13/pflag"
)

// sink is a poller.Sink that owns resources released at shutdown
type sink interface {
	poller.Sink
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().
		Str("config_file", cfg.ConfigFile).
		Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logFatal(err, "Failed to write PID file")
	}

	code := run(cfg)

	if err := pid.Remove(); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	os.Exit(code)
}

func run(cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	log := logger.New()

	clientCfg := telemetry.DefaultConfig()
	clientCfg.BaseURL = cfg.URL
	clientCfg.Timeout = cfg.Timeout
	client, err := telemetry.NewClient(clientCfg)
	if err != nil {
		logError(err, "Failed to create telemetry client")
		return 1
	}

	var target display.Target
	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging readings...")
		target = display.NewLogTarget(log)
	} else {
		target = display.NewTerminal(os.Stdout, !logger.IsService())
	}
	renderer := display.NewRenderer(target, cfg.FlashDuration)
	defer renderer.Close()

	sinks, err := openSinks(cfg, log)
	defer closeSinks(sinks)
	if err != nil {
		logError(err, "Failed to initialize sinks")
		return 1
	}

	observers := make([]poller.Sink, 0, len(sinks))
	for _, s := range sinks {
		observers = append(observers, s)
	}

	pollCfg := poller.DefaultConfig()
	pollCfg.Interval = cfg.Interval
	pollCfg.RetryDelay = cfg.RetryDelay
	scheduler, err := poller.New(client, renderer, pollCfg, observers...)
	if err != nil {
		logError(err, "Failed to create scheduler")
		return 1
	}

	logger.Info().
		Str("url", client.URL()).
		Dur("interval", cfg.Interval).
		Dur("retry_delay", cfg.RetryDelay).
		Msg("Starting solardash")

	if err := scheduler.Start(ctx); err != nil {
		logError(err, "Failed to start scheduler")
		return 1
	}

	<-ctx.Done()
	scheduler.Stop()
	scheduler.Wait()

	stats := scheduler.Stats()
	logger.Info().
		Int64("cycles", stats.Cycles).
		Int64("successes", stats.Successes).
		Int64("failures", stats.Failures).
		Int64("retries", stats.Retries).
		Int64("render_errors", stats.RenderErrors).
		Int64("sink_errors", stats.SinkErrors).
		Msg("Exiting...")

	return 0
}

func openSinks(cfg *config.Config, log logger.Logger) ([]sink, error) {
	var sinks []sink

	if cfg.History.Enabled {
		historyCfg := history.DefaultConfig()
		historyCfg.Enabled = true
		historyCfg.DBPath = cfg.History.DBPath
		historyCfg.BackupDir = cfg.History.BackupDir
		historyCfg.BatchSize = cfg.History.BatchSize
		historyCfg.BatchTimeout = cfg.History.BatchTimeout

		recorder, err := history.NewService(historyCfg, log)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, recorder)
	}

	if cfg.MQTT.Enabled {
		mqttCfg := mqtt.DefaultConfig()
		mqttCfg.Enabled = true
		mqttCfg.Broker = cfg.MQTT.Broker
		mqttCfg.Topic = cfg.MQTT.Topic
		mqttCfg.ClientID = cfg.MQTT.ClientID
		mqttCfg.Username = cfg.MQTT.Username
		mqttCfg.Password = cfg.MQTT.Password
		mqttCfg.QoS = byte(cfg.MQTT.QoS)
		mqttCfg.Retained = cfg.MQTT.Retained
		mqttCfg.ConnectTimeout = cfg.Timeout

		forwarder, err := mqtt.Connect(mqttCfg, log)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, forwarder)
	}

	return sinks, nil
}

func closeSinks(sinks []sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sink")
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func logFatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
		return
	}
	logger.Fatal().Err(err).Msg(msg)
}
