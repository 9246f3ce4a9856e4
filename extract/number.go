package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	wsRun       = regexp.MustCompile(`\s+`)
	firstNumber = regexp.MustCompile(`[-+]?\d+(\.\d+)?`)
)

// unusualSpaces maps narrow and no-break spaces to ordinary spaces so the
// whitespace collapse below catches them.
var unusualSpaces = strings.NewReplacer(" ", " ", " ", " ")

// cleanText collapses whitespace runs to a single space and trims.
func cleanText(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(unusualSpaces.Replace(s), " "))
}

// ParseNumber converts locale-formatted percentage text into a float:
// "3,12 %" → 3.12, "-0,34 %" → -0.34, "1 234,5" → 1234.5. The em-dash,
// bare hyphen and "N/A" markers mean "no value". Absence of a parseable
// number is always nil, never an error.
func ParseNumber(raw string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(cleanText(raw), "%", ""))
	switch s {
	case "", "—", "-", "N/A", "n/a":
		return nil
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	m := firstNumber.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}
