package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGuardsBeforeOpen(t *testing.T) {
	s := NewSession(Config{})

	if s.IsOpen() {
		t.Fatal("fresh session reports open")
	}
	if err := s.Goto(context.Background(), "https://example.com"); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("goto err = %v, want ErrSessionNotOpen", err)
	}
	if _, err := s.CapturePage(context.Background(), t.TempDir(), "x"); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("capture err = %v, want ErrSessionNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close on never-opened session: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.PageLoadTimeout != 30*time.Second {
		t.Fatalf("page load timeout = %v", c.PageLoadTimeout)
	}
	if c.Logger == nil {
		t.Fatal("nil logger after defaults")
	}
}

func TestWriteCapture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "captures")

	res, err := writeCapture(dir, "0001_quantalys_20260101_120000_www-quantalys-com",
		[]byte("<html><body>x</body></html>"), "https://www.quantalys.com/Fonds/1")
	if err != nil {
		t.Fatal(err)
	}

	html, err := os.ReadFile(res.HTMLPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(html) != "<html><body>x</body></html>" {
		t.Fatalf("markup = %q", html)
	}

	urlFile, err := os.ReadFile(res.URLPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(urlFile) != "https://www.quantalys.com/Fonds/1\n" {
		t.Fatalf("url companion = %q", urlFile)
	}
	if res.CurrentURL != "https://www.quantalys.com/Fonds/1" {
		t.Fatalf("current url = %q", res.CurrentURL)
	}
}

func TestWriteCaptureBadDir(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail.
	base := t.TempDir()
	blocker := filepath.Join(base, "captures")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := writeCapture(blocker, "n", []byte("<html/>"), "u"); err == nil {
		t.Fatal("expected an error creating the output dir")
	}
}
