// Command stocksentinel runs the attended fund-page acquisition service: a
// visible browser session driven by a task queue, controlled over HTTP.
//
// Usage:
//
//	stocksentinel                          # built-in defaults
//	stocksentinel -config sentinel.yaml    # explicit configuration
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
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"stocksentinel/acquire"
	"stocksentinel/api"
	"stocksentinel/browser"
	"stocksentinel/config"
	"stocksentinel/dbopen"
	"stocksentinel/extract"
	"stocksentinel/render"
	"stocksentinel/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("stocksentinel: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	var st *store.Store
	if cfg.DatabasePath != "" {
		db, err := dbopen.Open(cfg.DatabasePath,
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(store.Schema))
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer db.Close()
		st = store.New(db)
		logger.Info("catalog open", "path", cfg.DatabasePath)
	}

	var renderer *render.Renderer
	if *cfg.Markdown {
		renderer = render.New()
	}

	session := browser.NewSession(browser.Config{
		Bin:             cfg.Browser.Bin,
		PageLoadTimeout: cfg.Browser.PageLoadTimeout,
		Logger:          logger,
	})

	sched := acquire.New(session, acquire.Config{
		OutputDir:       cfg.OutputDir,
		StabilizeDelay:  cfg.Acquire.StabilizeDelay,
		PreCaptureDelay: cfg.Acquire.PreCaptureDelay,
		Logger:          logger,
		AfterCapture:    afterCapture(ctx, logger, renderer, st),
	})

	srv := api.New(sched, st, logger)
	go srv.Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("control api listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	sched.Stop()
	sched.Wait()
	if err := sched.CloseSession(); err != nil {
		logger.Warn("close session", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// afterCapture builds the post-capture hook: markdown companion and catalog
// insert, both best-effort so a rendering or database hiccup never fails the
// capture itself.
func afterCapture(ctx context.Context, logger *slog.Logger, renderer *render.Renderer, st *store.Store) func(acquire.Task, acquire.CaptureResult) {
	if renderer == nil && st == nil {
		return nil
	}
	return func(task acquire.Task, res acquire.CaptureResult) {
		html, err := os.ReadFile(res.HTMLPath)
		if err != nil {
			logger.Warn("post-capture: read markup", "path", res.HTMLPath, "error", err)
			return
		}
		if renderer != nil {
			if _, err := renderer.WriteCompanion(res.HTMLPath, html, res.CurrentURL); err != nil {
				logger.Warn("post-capture: markdown companion", "path", res.HTMLPath, "error", err)
			}
		}
		if st != nil {
			rec := extract.Extract(html, filepath.Base(res.HTMLPath))
			if _, err := st.Insert(ctx, rec); err != nil {
				logger.Warn("post-capture: catalog insert", "path", res.HTMLPath, "error", err)
			}
		}
	}
}
