package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ocloudstack/ocloudstack/internal/alarms"
	"github.com/ocloudstack/ocloudstack/internal/collector"
	"github.com/ocloudstack/ocloudstack/internal/config"
	"github.com/ocloudstack/ocloudstack/internal/notify"
	"github.com/ocloudstack/ocloudstack/internal/reports"
	"github.com/ocloudstack/ocloudstack/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("ocloud-monitor starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	m := cfg.Monitor
	slog.Info("config loaded",
		"database", m.Database.Path,
		"evaluation_interval", m.Evaluation.Interval,
		"evaluation_enabled", m.Evaluation.Enabled,
		"notifications_enabled", m.Notifications.Enabled,
		"report_check_interval", m.Reports.CheckInterval,
		"collector_targets", len(m.Collector.Targets),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(m.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			slog.Debug("loop exited", "loop", name)
		}()
	}

	// Notification dispatcher: single worker draining the event queue.
	dispatcher := notify.NewDispatcher(m.Notifications, db.Subscriptions, db.Resources, db.Alarms)
	run("dispatcher", dispatcher.Run)

	// Threshold evaluator, gated by the automatic-alarms master switch.
	monitor := alarms.NewMonitor(m.Evaluation, m.Thresholds,
		db.Resources, db.Metrics, db.Alarms, dispatcher, m.Notifications.Enabled)
	if m.Evaluation.Enabled {
		run("evaluator", monitor.Run)
	} else {
		slog.Info("automatic alarm evaluation disabled in config")
	}

	// Performance report generator.
	generator := reports.NewGenerator(m.Reports, db.Jobs, db.Metrics)
	run("reports", generator.Run)

	// Metric collector feeding the sample store.
	coll := collector.New(m.Collector, db.Metrics)
	run("collector", coll.Run)

	// Hot reload: threshold changes take effect on the next cycle.
	run("config-watch", func(ctx context.Context) {
		if err := config.Watch(ctx, *configPath, func(next *config.Config) {
			monitor.UpdateThresholds(next.Monitor.Thresholds)
		}); err != nil {
			slog.Error("config watch failed", "err", err)
		}
	})

	<-ctx.Done()
	slog.Info("ocloud-monitor shutting down", "grace", shutdownGrace)

	// Loops stop via ctx; bound the wait so a stuck delivery attempt
	// cannot hold up process exit.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("ocloud-monitor stopped")
	case <-time.After(shutdownGrace):
		slog.Warn("shutdown grace elapsed, abandoning in-flight work")
	}
}
