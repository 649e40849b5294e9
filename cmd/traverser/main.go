package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tab_traverser/internal/api"
	"github.com/dgnsrekt/tab_traverser/internal/badge"
	"github.com/dgnsrekt/tab_traverser/internal/browser"
	"github.com/dgnsrekt/tab_traverser/internal/cdp"
	"github.com/dgnsrekt/tab_traverser/internal/config"
	"github.com/dgnsrekt/tab_traverser/internal/netutil"
	"github.com/dgnsrekt/tab_traverser/internal/notify"
	"github.com/dgnsrekt/tab_traverser/internal/relay"
	"github.com/dgnsrekt/tab_traverser/internal/storage"
	"github.com/dgnsrekt/tab_traverser/internal/traversal"
	"github.com/dgnsrekt/tab_traverser/internal/wakeup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load traverser config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("traverser config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"store_driver", cfg.StoreDriver,
		"store_path", cfg.StorePath,
		"nav_timeout_ms", cfg.NavTimeoutMS,
		"nav_rate", cfg.NavRate,
		"badge_refresh_ms", cfg.BadgeRefreshMS,
		"autostart_file", cfg.AutostartFile,
		"ntfy_enabled", cfg.NtfyEndpoint != "",
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("traverser failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.BrowserProfileDir,
			Binary:     cfg.BrowserBinary,
		})
		if err := launcher.Launch(ctx); err != nil {
			return err
		}
		defer launcher.Stop()
	}

	store, err := storage.Open(storage.Config{Driver: cfg.StoreDriver, Path: cfg.StorePath})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Debug("store close failed", "error", err)
		}
	}()

	broker := relay.NewBroker()
	defer broker.Close()
	badges := badge.NewRegistry(broker, cfg.BadgeRefresh())
	defer badges.Close()

	cdpClient := cdp.NewClient(cdp.Config{URL: cfg.CDPURL(), NavTimeout: cfg.NavTimeout(), NavRate: cfg.NavRate})
	if err := cdpClient.Connect(ctx); err != nil {
		// Traversals still recover and tick; navigations fail until the
		// browser is reachable and the process restarts.
		slog.Error("failed to connect CDP", "cdp_url", cfg.CDPURL(), "error", err)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	notifier := notify.New(cfg.NtfyEndpoint, nil)

	timerCtx, stopTimer := context.WithCancel(context.Background())
	var sched *traversal.Scheduler
	timer := wakeup.New(timerCtx, func(tabID string) { sched.Fire(tabID) })
	sched = traversal.New(store, timer, cdpClient,
		traversal.WithDisplay(badges),
		traversal.WithNavTimeout(cfg.NavTimeout()),
		traversal.WithAutoStop(notifier.TraversalStopped),
	)
	// Runs before the store and CDP client close, so in-flight ticks finish
	// their writes.
	defer func() {
		stopTimer()
		<-timer.Done()
	}()

	if _, err := sched.Recover(ctx); err != nil {
		slog.Error("traversal recovery failed", "error", err)
	}
	if cfg.AutostartFile != "" {
		autostart(ctx, cfg.AutostartFile, sched, cdpClient)
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()
	srv := &http.Server{
		Handler:           api.NewServer(sched, cdpClient, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("traverser listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// Event streams never end on their own; close the broker first so their
	// handlers return and Shutdown can drain.
	broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("traverser shutdown failed", "error", err)
	}
	return nil
}

// autostart starts every configured traversal whose tab is idle. Persisted
// state always wins over the file.
func autostart(ctx context.Context, path string, sched *traversal.Scheduler, tabs api.TabLister) {
	file, err := config.LoadAutostart(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("autostart file not found", "path", path)
			return
		}
		slog.Error("autostart file invalid", "path", path, "error", err)
		return
	}

	open, err := tabs.ListTabs(ctx)
	if err != nil {
		slog.Warn("autostart could not list tabs", "error", err)
	}
	for i, entry := range file.Traversals {
		tabID, ok := entry.ResolveTab(open)
		if !ok {
			slog.Warn("autostart tab not found", "index", i, "tab_url_contains", entry.TabURLContains)
			continue
		}
		res, err := sched.StartIfIdle(ctx, tabID, entry.URLs, entry.IntervalMS)
		if err != nil {
			slog.Error("autostart failed", "index", i, "tab_id", tabID, "error", err)
			continue
		}
		slog.Info("autostart entry applied", "index", i, "tab_id", tabID, "outcome", res.Outcome)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
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
