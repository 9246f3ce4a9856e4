// Package browser owns the attended Chrome session: one visible window, one
// tab, launched once and reused across the whole acquisition run so cookie
// consents and logins persist between pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"stocksentinel/acquire"
)

// ErrDriverUnavailable means no compatible Chrome/Chromium binary could be
// located. Surfaced on session open, never mid-run.
var ErrDriverUnavailable = errors.New("browser: no compatible chrome binary found")

// ErrSessionNotOpen guards page operations before Open succeeded.
var ErrSessionNotOpen = errors.New("browser: session not open")

// Config configures the attended session.
type Config struct {
	// Bin is an explicit browser binary path. Empty = search the host.
	Bin string

	// PageLoadTimeout bounds Navigate+WaitLoad per page. Default: 30s.
	PageLoadTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is a single attended browser window. Open is lazy and idempotent;
// the window survives queue drains and closes only on shutdown. All page
// operations run on the one persistent tab.
type Session struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

var _ acquire.CaptureSession = (*Session)(nil)

// NewSession creates a Session. Call Open (or let the scheduler do it on
// start) to launch the window.
func NewSession(cfg Config) *Session {
	cfg.defaults()
	return &Session{cfg: cfg, log: cfg.Logger}
}

// Open launches a visible Chrome and attaches the persistent tab. Calling it
// on an open session is a no-op.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		return nil
	}

	bin := s.cfg.Bin
	if bin == "" {
		found, has := launcher.LookPath()
		if !has {
			return ErrDriverUnavailable
		}
		bin = found
	}

	l := launcher.New().
		Bin(bin).
		Headless(false).
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("browser: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return fmt.Errorf("browser: create tab: %w", err)
	}

	s.browser = b
	s.lnch = l
	s.page = page
	s.log.Info("browser: session open", "bin", bin)
	return nil
}

// IsOpen reports whether the window is up.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page != nil
}

// Goto navigates the persistent tab and waits for the load event, bounded by
// PageLoadTimeout. A load-event timeout is logged but not fatal: slow pages
// still stabilize during the pre-capture delays.
func (s *Session) Goto(ctx context.Context, url string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// CapturePage serialises the live DOM (post-JavaScript, as currently
// rendered) and writes <baseName>.html plus <baseName>.url.txt under outDir.
// The URL companion records where the page actually ended up after any
// redirects.
func (s *Session) CapturePage(ctx context.Context, outDir, baseName string) (acquire.CaptureResult, error) {
	page, err := s.currentPage()
	if err != nil {
		return acquire.CaptureResult{}, err
	}

	domRes, err := page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return acquire.CaptureResult{}, fmt.Errorf("browser: serialise DOM: %w", err)
	}
	urlRes, err := page.Context(ctx).Eval(`() => document.location.href`)
	if err != nil {
		return acquire.CaptureResult{}, fmt.Errorf("browser: read location: %w", err)
	}

	res, err := writeCapture(outDir, baseName, []byte(domRes.Value.Str()), urlRes.Value.Str())
	if err != nil {
		return acquire.CaptureResult{}, err
	}
	s.log.Info("browser: page captured", "path", res.HTMLPath, "url", res.CurrentURL)
	return res, nil
}

// Close tears the window down. Idempotent; safe to call on a never-opened
// session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return nil
	}
	if err := s.browser.Close(); err != nil {
		s.log.Warn("browser: close", "error", err)
	}
	s.lnch.Cleanup()
	s.browser = nil
	s.lnch = nil
	s.page = nil
	s.log.Info("browser: session closed")
	return nil
}

func (s *Session) currentPage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, ErrSessionNotOpen
	}
	return s.page, nil
}

// writeCapture persists the markup and its URL companion, creating outDir as
// needed.
func writeCapture(outDir, baseName string, html []byte, currentURL string) (acquire.CaptureResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return acquire.CaptureResult{}, fmt.Errorf("browser: output dir: %w", err)
	}

	htmlPath := filepath.Join(outDir, baseName+".html")
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return acquire.CaptureResult{}, fmt.Errorf("browser: write markup: %w", err)
	}

	urlPath := filepath.Join(outDir, baseName+".url.txt")
	if err := os.WriteFile(urlPath, []byte(currentURL+"\n"), 0o644); err != nil {
		return acquire.CaptureResult{}, fmt.Errorf("browser: write url companion: %w", err)
	}

	return acquire.CaptureResult{
		CurrentURL: currentURL,
		HTMLPath:   htmlPath,
		URLPath:    urlPath,
	}, nil
}
