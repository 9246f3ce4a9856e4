package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Star rating is read from accessibility labels. The French wording is tried
// across the whole document before falling back to the English one.
var msStarPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Morningstar Rating\s+(\d+(?:\.\d+)?)\s+sur\s+5`),
	regexp.MustCompile(`(?i)rating of\s+(\d+(?:\.\d+)?)\s+out of\s+5\s+stars`),
}

// fundRowLabels are the row synonyms identifying the fund's own row in
// performance tables (as opposed to benchmark or category rows).
var fundRowLabels = []string{"Fonds", "Fund"}

// Per-horizon column synonyms, tried in order.
var (
	msCols4Weeks = []string{"4 sem.", "4 sem", "4 weeks", "4w", "1 mois", "1 month", "1m"}
	msColsYTD    = []string{"YTD", "year to date", "depuis le début", "depuis le début de l'année"}
	msCols1Year  = []string{"1 an", "1 year", "1y"}
	msCols3Years = []string{"3 ans", "3 years", "3 year", "3y"}
)

func extractMorningstar(doc *goquery.Document, sourceFile string) Record {
	site := SiteMorningstar
	return Record{
		Site:       &site,
		Name:       morningstarName(doc),
		Stars:      morningstarStars(doc),
		Perf4Weeks: parseRaw(findValueInAnyTable(doc, fundRowLabels, msCols4Weeks)),
		PerfYTD:    parseRaw(findValueInAnyTable(doc, fundRowLabels, msColsYTD)),
		Perf1Year:  parseRaw(findValueInAnyTable(doc, fundRowLabels, msCols1Year)),
		Perf3Years: parseRaw(findValueInAnyTable(doc, fundRowLabels, msCols3Years)),
		SourceFile: sourceFile,
	}
}

// morningstarName prefers the semantic name marker inside the main heading,
// falling back to the document title truncated at its separator.
func morningstarName(doc *goquery.Document) *string {
	if n := doc.Find(`h1 span[itemprop="name"]`).First(); n.Length() > 0 {
		t := textOf(n)
		return &t
	}
	if title := textOf(doc.Find("title").First()); title != "" {
		t := cleanText(strings.SplitN(title, "|", 2)[0])
		return &t
	}
	return nil
}

func morningstarStars(doc *goquery.Document) *float64 {
	for _, pat := range msStarPatterns {
		var stars *float64
		doc.Find("[aria-label]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			m := pat.FindStringSubmatch(el.AttrOr("aria-label", ""))
			if m == nil {
				return true
			}
			f, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return true
			}
			stars = &f
			return false
		})
		if stars != nil {
			return stars
		}
	}
	return nil
}
