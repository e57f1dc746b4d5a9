// Command easybutton debounces push buttons on GPIO lines and publishes
// presses, releases and long presses to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/easybutton/internal/button"
	"github.com/sweeney/easybutton/internal/config"
	"github.com/sweeney/easybutton/internal/gpio"
	"github.com/sweeney/easybutton/internal/mqtt"
	"github.com/sweeney/easybutton/internal/status"
	"github.com/sweeney/easybutton/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to easybutton.yaml (default: search . and /etc/easybutton)")
	printState := flag.Bool("print-state", false, "Print current button levels and exit")

	flag.Parse()

	logger, level, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *printState, logger.Sugar(), level); err != nil {
		logger.Sugar().Fatalw("fatal", "error", err)
	}
}

func newLogger() (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

func run(configPath string, printState bool, logger *zap.SugaredLogger, level zap.AtomicLevel) error {
	loader := config.NewLoader(configPath, logger)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt := config.RuntimeOf(cfg)
	level.SetLevel(rt.LogLevel)

	bank, err := gpio.Open(cfg.Driver, cfg.Chip, cfg.Lines(), logger)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer bank.Close()

	if printState {
		return printLevels(os.Stdout, cfg, bank)
	}

	var led gpio.Output
	if cfg.LEDLine >= 0 {
		led, err = bank.Output(cfg.LEDLine)
		if err != nil {
			return fmt.Errorf("init led: %w", err)
		}
	}

	queue := &eventQueue{}
	registry, err := buildRegistry(cfg, bank, button.NewSystemClock(), led, queue, logger.Named("button"))
	if err != nil {
		return fmt.Errorf("init buttons: %w", err)
	}

	publisher, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, cfg.TopicPrefix, logger)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	poll := time.Duration(cfg.PollMs) * time.Millisecond
	heartbeat := time.Duration(cfg.HeartbeatMs) * time.Millisecond

	// Tracker exists before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), status.Config{
		Driver:      cfg.Driver,
		PollMs:      int64(cfg.PollMs),
		DebounceMs:  int64(cfg.DebounceMs),
		LongPressMs: int64(cfg.LongPressMs),
		HeartbeatMs: int64(cfg.HeartbeatMs),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})

	l := &loop{
		registry:   registry,
		queue:      queue,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		level:      level,
		logger:     logger.Named("loop"),
		now:        time.Now,
		heartbeat:  heartbeat,
		longPress:  uint32(rt.LongPressMs),
	}
	l.refreshAll()

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warnw("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Infow("http status server listening", "addr", cfg.HTTPAddr)
	}

	reloads := make(chan config.Runtime, 1)
	loader.Watch(func(rt config.Runtime) {
		// Keep only the latest reload if the loop has not caught up.
		select {
		case <-reloads:
		default:
		}
		reloads <- rt
	})

	if err := bank.Start(); err != nil {
		return fmt.Errorf("start edge detection: %w", err)
	}
	defer bank.Stop()

	logger.Infow("started",
		"driver", cfg.Driver,
		"buttons", len(cfg.Buttons),
		"poll", poll,
		"debounceMs", cfg.DebounceMs,
		"longPressMs", cfg.LongPressMs,
		"heartbeat", heartbeat)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(bank.Edges(), ticker.C, reloads, sigCh)
}
