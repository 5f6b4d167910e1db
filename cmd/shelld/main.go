package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/driftbrowser/tabcore/internal/api"
	"github.com/driftbrowser/tabcore/internal/config"
	"github.com/driftbrowser/tabcore/internal/engine"
	"github.com/driftbrowser/tabcore/internal/engine/cdp"
	"github.com/driftbrowser/tabcore/internal/events"
	"github.com/driftbrowser/tabcore/internal/favicon"
	"github.com/driftbrowser/tabcore/internal/lifecycle"
	"github.com/driftbrowser/tabcore/internal/media"
	"github.com/driftbrowser/tabcore/internal/netutil"
	"github.com/driftbrowser/tabcore/internal/ownership"
	"github.com/driftbrowser/tabcore/internal/profile"
	"github.com/driftbrowser/tabcore/internal/shell"
	"github.com/driftbrowser/tabcore/internal/tab"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("shelld config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.GetCDPURL(),
		"favicon_dir", cfg.FaviconDir,
		"favicon_capacity", cfg.FaviconCapacity,
		"media_probe_interval", cfg.MediaProbeInterval,
		"default_profile", cfg.DefaultProfileID,
		"log_level", cfg.LogLevel,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, cfg.BindFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	factory, err := cdp.NewFactory(cfg.GetCDPURL())
	if err != nil {
		slog.Error("failed to connect to engine", "cdp_url", cfg.GetCDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			slog.Debug("engine factory close failed", "error", err)
		}
	}()

	cache, err := favicon.New(cfg.FaviconDir, cfg.FaviconCapacity)
	if err != nil {
		slog.Error("failed to create favicon cache", "dir", cfg.FaviconDir, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Debug("favicon cache close failed", "error", err)
		}
	}()
	icons := favicon.NewResolver(cache, favicon.NewHTTPFetcher())

	tabs := tab.NewCollection()
	registry := ownership.NewRegistry()
	broker := events.NewBroker()
	profiles := profile.NewStore()
	if cfg.ResolveDefaultOnBoot {
		profiles.Resolve(engine.Profile{ID: cfg.DefaultProfileID})
	}

	coord := lifecycle.NewCoordinator(tabs, registry, factory, profiles, icons, broker)
	agg := media.NewAggregator(registry, tabs, coord)
	agg.SetHardwareInterval(cfg.HardwareMinInterval)
	coord.SetMediaRefresher(agg)

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go agg.RunPeriodic(runCtx, cfg.MediaProbeInterval)

	svc := shell.NewService(coord, agg, icons, cache, tabs, registry, profiles)
	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker)}

	go func() {
		slog.Info("shelld listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("shelld server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shelld shutdown failed", "error", err)
	}

	coord.Shutdown(ctx)
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
