package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Quantalys renders the star rating either as a sprite class
// ("spritefonds sprite-5g ...") or as a star image filename.
var (
	qStarSprite = regexp.MustCompile(`sprite-(\d)g`)
	qStarImage  = regexp.MustCompile(`qt-star-(\d)-(\d)\.png`)
)

// qTableSelector is the fixed class combination carried by Quantalys data
// tables; only these are candidates for performance lookup.
const qTableSelector = "table.table.table-condensed-max.table-hover"

// qPerfPhrases are the canonical performance-label phrases used to pick the
// right candidate table (lowercased, matched against flattened table text).
var qPerfPhrases = []string{
	"perf. 4 semaines",
	"perf. 1er janvier",
	"perf. 1 an",
	"perf. 3 ans",
}

// Horizon rows are located by anchored full-string matches on the row's
// first cell, so "Perf. 4 semaines (annualisée)" never qualifies.
var (
	qRow4Weeks = regexp.MustCompile(`(?i)^perf\.\s*4\s*semaines$`)
	qRowYTD    = regexp.MustCompile(`(?i)^perf\.\s*1er\s*janvier$`)
	qRow1Year  = regexp.MustCompile(`(?i)^perf\.\s*1\s*an$`)
	qRow3Years = regexp.MustCompile(`(?i)^perf\.\s*3\s*ans$`)
)

func extractQuantalys(doc *goquery.Document, sourceFile string) Record {
	site := SiteQuantalys
	rec := Record{
		Site:       &site,
		Name:       quantalysName(doc),
		Stars:      quantalysStars(doc),
		SourceFile: sourceFile,
	}
	rec.Perf4Weeks, rec.PerfYTD, rec.Perf1Year, rec.Perf3Years = quantalysPerformances(doc)
	return rec
}

// quantalysName prefers the emphasized text inside the main heading, falling
// back to the whole heading.
func quantalysName(doc *goquery.Document) *string {
	if n := doc.Find("h1 strong").First(); n.Length() > 0 {
		t := textOf(n)
		return &t
	}
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		t := textOf(h1)
		return &t
	}
	return nil
}

func quantalysStars(doc *goquery.Document) *float64 {
	if sprite := doc.Find(".spritefonds").First(); sprite.Length() > 0 {
		if m := qStarSprite.FindStringSubmatch(sprite.AttrOr("class", "")); m != nil {
			n, _ := strconv.Atoi(m[1])
			f := float64(n)
			return &f
		}
	}

	var stars *float64
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		m := qStarImage.FindStringSubmatch(img.AttrOr("src", ""))
		if m == nil {
			return true
		}
		n, _ := strconv.Atoi(m[1])
		f := float64(n)
		stars = &f
		return false
	})
	return stars
}

// quantalysPerformances locates the performance table among the fixed-class
// candidates, preferring the one whose text carries the canonical "perf."
// labels, else the first candidate. The "Fonds" column is found by exact
// header text match (default index 1 when no header says so); horizon rows
// by anchored regex on the first cell. Rows shorter than the fund column are
// skipped.
func quantalysPerformances(doc *goquery.Document) (p4w, pYTD, p1y, p3y *float64) {
	tables := doc.Find(qTableSelector)
	if tables.Length() == 0 {
		return nil, nil, nil, nil
	}

	perfTable := tables.First()
	tables.EachWithBreak(func(_ int, t *goquery.Selection) bool {
		txt := strings.ToLower(textOf(t))
		for _, phrase := range qPerfPhrases {
			if strings.Contains(txt, phrase) {
				perfTable = t
				return false
			}
		}
		return true
	})

	idxFonds := 1
	headerCells := perfTable.Find("thead").First().Find("th, td")
	if headerCells.Length() == 0 {
		if firstRow := perfTable.Find("tr").First(); firstRow.Length() > 0 {
			headerCells = firstRow.Find("th, td")
		}
	}
	headerCells.EachWithBreak(func(i int, c *goquery.Selection) bool {
		if strings.ToLower(textOf(c)) == "fonds" {
			idxFonds = i
			return false
		}
		return true
	})

	var raw4w, rawYTD, raw1y, raw3y *string
	perfTable.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() <= idxFonds {
			return
		}
		label := textOf(cells.Eq(0))
		value := textOf(cells.Eq(idxFonds))

		if qRow4Weeks.MatchString(label) {
			raw4w = &value
		}
		if qRowYTD.MatchString(label) {
			rawYTD = &value
		}
		if qRow1Year.MatchString(label) {
			raw1y = &value
		}
		if qRow3Years.MatchString(label) {
			raw3y = &value
		}
	})

	return parseRaw(raw4w), parseRaw(rawYTD), parseRaw(raw1y), parseRaw(raw3y)
}
