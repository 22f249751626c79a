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

	"github.com/dgnsrekt/media_sniffer/internal/api"
	"github.com/dgnsrekt/media_sniffer/internal/bridge"
	"github.com/dgnsrekt/media_sniffer/internal/browser"
	"github.com/dgnsrekt/media_sniffer/internal/capture"
	"github.com/dgnsrekt/media_sniffer/internal/cdp"
	"github.com/dgnsrekt/media_sniffer/internal/config"
	"github.com/dgnsrekt/media_sniffer/internal/filter"
	"github.com/dgnsrekt/media_sniffer/internal/mediastore"
	"github.com/dgnsrekt/media_sniffer/internal/netutil"
	"github.com/dgnsrekt/media_sniffer/internal/relay"
	"github.com/dgnsrekt/media_sniffer/internal/rules"
	"github.com/dgnsrekt/media_sniffer/internal/snapshot"
	"github.com/dgnsrekt/media_sniffer/internal/storage"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("mediasniff config loaded",
		"cdp_url", cfg.GetCDPURL(),
		"bind_addr", cfg.BindAddr,
		"bind_fallbacks", cfg.BindFallbacks,
		"data_dir", cfg.DataDir,
		"rules_file", cfg.RulesFile,
		"tab_url_filter", cfg.TabURLFilter,
		"journal", cfg.JournalEnabled,
		"max_tab_age", cfg.MaxTabAge,
		"log_level", cfg.LogLevel,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindFallbacks, cfg.AutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			BinaryPath: cfg.BrowserPath,
			Headless:   cfg.Headless,
			Mute:       cfg.MuteAudio,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
	}

	rs := rules.Default()
	if cfg.RulesFile != "" {
		rs, err = rules.LoadFile(cfg.RulesFile)
		if err != nil {
			slog.Error("failed to load rules", "path", cfg.RulesFile, "error", err)
			os.Exit(1)
		}
	}

	snaps, err := snapshot.NewStore(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		slog.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	// Target IDs do not survive a browser restart.
	if n, err := snaps.DeleteOlderThan(time.Now().Add(-cfg.MaxTabAge)); err != nil {
		slog.Warn("snapshot prune failed", "error", err)
	} else if n > 0 {
		slog.Info("pruned stale snapshots", "count", n)
	}

	store := mediastore.New(rs, snaps)
	broker := relay.NewBroker()

	opts := bridge.Options{Broker: broker}
	var journal *storage.Journal
	if cfg.JournalEnabled {
		journal = storage.NewJournal(cfg.DataDir, 1000, cfg.JournalSizeMB)
		opts.Journal = journal
	}

	registry := cdp.NewTabRegistry()
	opts.Tabs = registry
	b := bridge.New(filter.New(rs), store, opts)

	httpCapture := capture.NewHTTPCapture(b)
	client := cdp.NewClient(cdp.Options{
		CDPURL:         cfg.GetCDPURL(),
		TabURLFilter:   cfg.TabURLFilter,
		ReloadOnAttach: cfg.ReloadOnAttach,
	}, httpCapture, b, registry)
	if err := client.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.GetCDPURL(), "error", err)
		os.Exit(1)
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go store.RunSweeper(sweepCtx, cfg.SweepInterval, cfg.MaxTabAge)

	h := api.NewServer(b, api.Options{Cookies: client, Browser: client, Broker: broker})
	srv := &http.Server{Addr: bindAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("mediasniff listening", "addr", bindAddr, "docs", config.APIBaseURL(bindAddr)+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	stopSweep()
	if err := client.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	httpCapture.Close()
	if journal != nil {
		if err := journal.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := snaps.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if launcher != nil {
		launcher.Stop()
	}
	if err := result.ErrorOrNil(); err != nil {
		slog.Error("shutdown finished with errors", "error", err)
		os.Exit(1)
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
