// Package render produces markdown companions for captured pages: the raw
// markup stays the archival artifact, the .md sits next to it for quick
// human review. Pages are sanitized before conversion since captures come
// from live third-party DOMs, scripts included.
package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer converts captured markup to markdown. Safe for reuse across
// captures; construct once.
type Renderer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// New creates a Renderer. Tables are kept through sanitization because the
// performance matrices are the whole point of the capture.
func New() *Renderer {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	return &Renderer{
		policy: p,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown sanitizes the markup and converts it. sourceURL resolves relative
// links; it may be empty. The result is trimmed and may legitimately be
// empty for content-free pages.
func (r *Renderer) Markdown(html []byte, sourceURL string) (string, error) {
	clean := r.policy.SanitizeBytes(html)
	out, err := r.conv.ConvertString(string(clean), converter.WithDomain(sourceURL))
	if err != nil {
		return "", fmt.Errorf("render: convert: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// WriteCompanion renders markup and writes the .md file next to htmlPath,
// returning the companion path.
func (r *Renderer) WriteCompanion(htmlPath string, html []byte, sourceURL string) (string, error) {
	md, err := r.Markdown(html, sourceURL)
	if err != nil {
		return "", err
	}
	mdPath := companionPath(htmlPath)
	if err := os.WriteFile(mdPath, []byte(md+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("render: write companion: %w", err)
	}
	return mdPath, nil
}

// CompanionFromFile reads a capture from disk and writes its companion.
func (r *Renderer) CompanionFromFile(htmlPath, sourceURL string) (string, error) {
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		return "", fmt.Errorf("render: read capture: %w", err)
	}
	return r.WriteCompanion(htmlPath, html, sourceURL)
}

func companionPath(htmlPath string) string {
	return strings.TrimSuffix(htmlPath, ".html") + ".md"
}
