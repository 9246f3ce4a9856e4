// Package extract turns captured fund pages into structured performance
// records. Markup is classified as one of the two supported providers —
// Quantalys is checked before Morningstar — and routed to provider-specific
// heuristics. Missing tables, columns or rows degrade to nil fields;
// unrecognized markup yields a record carrying a classification error.
// Extraction never returns a Go error and is idempotent per input file.
package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Supported provider identifiers, as stored in Record.Site.
const (
	SiteMorningstar = "morningstar"
	SiteQuantalys   = "quantalys"
)

// Record is the structured output of parsing one captured markup file.
// Nullable fields are pointers; percentages are magnitudes (3.12 for
// "3,12 %"). JSON keys match the downstream reporting contract.
type Record struct {
	Site       *string  `json:"site"`
	Name       *string  `json:"name"`
	Stars      *float64 `json:"stars"`
	Perf4Weeks *float64 `json:"perf_4_semaines"`
	PerfYTD    *float64 `json:"perf_depuis_1er_janvier"`
	Perf1Year  *float64 `json:"perf_1_an"`
	Perf3Years *float64 `json:"perf_3_ans"`
	SourceFile string   `json:"source_file"`
	Error      string   `json:"error,omitempty"`
}

// DetectSite classifies raw markup by case-insensitive substring search.
// Quantalys is checked first: both markers can co-occur on one page and the
// observed precedence is pinned behavior. Returns "" for unknown markup.
func DetectSite(markup string) string {
	h := strings.ToLower(markup)
	if strings.Contains(h, "quantalys") {
		return SiteQuantalys
	}
	if strings.Contains(h, "morningstar") {
		return SiteMorningstar
	}
	return ""
}

// ExtractFile reads one captured markup file and produces its Record.
// Malformed byte sequences are tolerated; re-running on the same file
// produces a field-for-field identical record.
func ExtractFile(path string) Record {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{SourceFile: name, Error: "read: " + err.Error()}
	}
	return Extract(data, name)
}

// Extract parses raw markup and dispatches to the matching provider
// extractor. sourceFile is recorded verbatim on the result.
func Extract(markup []byte, sourceFile string) Record {
	site := DetectSite(string(markup))
	if site == "" {
		return Record{SourceFile: sourceFile, Error: "unrecognized site"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		// html.Parse is tolerant; this is effectively unreachable, but the
		// contract is nil fields, not a raised error.
		return Record{SourceFile: sourceFile, Error: "parse: " + err.Error()}
	}

	switch site {
	case SiteQuantalys:
		return extractQuantalys(doc, sourceFile)
	default:
		return extractMorningstar(doc, sourceFile)
	}
}

// parseRaw applies the numeric normalizer to an optional raw cell text.
func parseRaw(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	return ParseNumber(*raw)
}
