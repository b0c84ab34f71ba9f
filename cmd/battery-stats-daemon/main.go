package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cptspacemanspiff/battery-stats/internal/api"
	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/config"
	"github.com/cptspacemanspiff/battery-stats/internal/core"
	dbussvc "github.com/cptspacemanspiff/battery-stats/internal/dbus"
	"github.com/cptspacemanspiff/battery-stats/internal/snapshot"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
	"github.com/cptspacemanspiff/battery-stats/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default: environment only)")
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: battery,backlight,events,cpu,sleep,engine (or 'all')")
	resetDB := flag.Bool("reset-db", false, "delete the history database and snapshot, then exit")
	flag.Parse()

	logger := newTopicLogger(*verbose, *logFlag)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if *resetDB {
		for _, path := range []string{cfg.Storage.DBPath, cfg.Storage.DBPath + "-wal", cfg.Storage.DBPath + "-shm", cfg.Storage.SnapshotPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Error("delete file", "path", path, "err", err)
				os.Exit(1)
			}
		}
		logger.Info("history deleted", "db", cfg.Storage.DBPath, "snapshot", cfg.Storage.SnapshotPath)
		return
	}

	for _, dir := range []string{filepath.Dir(cfg.Storage.DBPath), filepath.Dir(cfg.Storage.SnapshotPath), filepath.Dir(cfg.Storage.EventLogPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create data dir", "path", dir, "err", err)
			os.Exit(1)
		}
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	cpuReader := collector.NewCPUTimeReader(int64(cfg.Collection.ClockTicksPerSecond), logger.With("topic", "cpu"))
	engine := core.New(core.Options{
		ProfilePath: cfg.Profile.Path,
		Time:        stats.SystemTime{},
		ChargeState: collector.ReadChargeState,
		CPU:         cpuReader,
		Now:         time.Now,
		Snapshots:   snapshot.NewStore(cfg.Storage.SnapshotPath),
		Logger:      logger.With("topic", "engine"),
	})
	if err := engine.Init(); err != nil {
		logger.Warn("engine started degraded", "err", err)
	}

	d := newDaemon(engine, store, logger)
	d.eventLogPath = cfg.Storage.EventLogPath
	d.brightnessBins = cfg.Collection.BrightnessBins
	d.host, _ = os.Hostname()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Export.DatabaseURL != "" {
		exporter, err := storage.NewExporter(ctx, cfg.Export.DatabaseURL)
		if err != nil {
			logger.Warn("postgres export unavailable", "err", err)
		} else if err := exporter.Migrate(ctx); err != nil {
			logger.Warn("postgres export migration failed", "err", err)
			exporter.Close()
		} else {
			d.exporter = exporter
			defer exporter.Close()
			logger.Info("exporting passes to postgres")
		}
	}

	svc := dbussvc.NewService(engine, store)
	if conn, err := svc.Export(); err != nil {
		logger.Warn("D-Bus service unavailable", "err", err)
	} else {
		defer conn.Close()
		logger.Info("D-Bus service registered", "name", "org.batterystats.Engine")
	}

	var server *http.Server
	if cfg.API.ListenAddr != "" {
		zlog := initLogger(cfg.API.Debug)
		defer zlog.Sync()

		d.hub = api.NewHub(zlog)
		go d.hub.Run(ctx)

		handler := api.NewHandler(zlog, engine, store, d.hub)
		handler.SetComputeFunc(d.compute)
		server = &http.Server{
			Addr:    cfg.API.ListenAddr,
			Handler: api.NewRouter(handler, zlog, cfg.API.Debug),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zlog.Error("http server failed", zap.Error(err))
			}
		}()
		logger.Info("HTTP API listening", "addr", cfg.API.ListenAddr)
	}

	sleepLog := logger.With("topic", "sleep")
	var sleepCh, wakeCh, shutdownCh <-chan struct{}
	if sleepMon, err := collector.NewSleepMonitor(sleepLog); err != nil {
		logger.Warn("sleep monitor unavailable", "err", err)
	} else {
		sleepCh, wakeCh, shutdownCh = sleepMon.Sleep(), sleepMon.Wake(), sleepMon.Shutdown()
		defer sleepMon.Close()
	}

	interval := time.Duration(cfg.Collection.IntervalSeconds) * time.Second
	pollTicker := time.NewTicker(interval)
	defer pollTicker.Stop()
	computeTicker := time.NewTicker(time.Duration(cfg.Collection.ComputeIntervalSeconds) * time.Second)
	defer computeTicker.Stop()
	cleanupTicker := time.NewTicker(time.Duration(cfg.Cleanup.IntervalHours) * time.Hour)
	defer cleanupTicker.Stop()
	retention := time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d.poll()
	d.cleanup(retention)
	logger.Info(fmt.Sprintf("battery-stats-daemon started, collecting every %s", interval))

	lastTick := time.Now().Round(0) // wall clock, so suspend shows up as a gap
	for {
		select {
		case <-pollTicker.C:
			now := time.Now().Round(0)
			if gap := now.Sub(lastTick); gap > 3*interval {
				logger.Info("wall-clock jump detected", "gap_secs", int(gap.Seconds()))
			}
			lastTick = now
			d.poll()
		case <-computeTicker.C:
			d.compute()
		case <-cleanupTicker.C:
			d.cleanup(retention)
		case <-sleepCh:
			sleepLog.Info("system going to sleep, screen off")
			d.screenOff()
		case <-wakeCh:
			sleepLog.Info("wake signal received, polling")
			d.poll()
			lastTick = time.Now().Round(0)
		case <-shutdownCh:
			sleepLog.Info("system shutting down, saving snapshot")
			if err := engine.SaveSnapshot(); err != nil {
				logger.Error("save snapshot", "err", err)
			}
		case <-sigCh:
			logger.Info("shutting down")
			d.importEventLog()
			d.compute()
			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("http server forced to shutdown", "err", err)
				}
				shutdownCancel()
			}
			return
		}
	}
}
