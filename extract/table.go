package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// textOf flattens a selection's subtree into a single whitespace-normalized
// string, joining adjacent text nodes with a space the way rendered cells
// read.
func textOf(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return cleanText(sb.String())
}

// tableMatrix flattens one <table> into a header row and body rows of
// normalized cell texts. Headers come from an explicit <thead> if present,
// else there are none. Body rows come from <tbody> if present, else the
// whole table. Rows whose cells are all empty are dropped.
func tableMatrix(table *goquery.Selection) (headers []string, rows [][]string) {
	if thead := table.Find("thead").First(); thead.Length() > 0 {
		thead.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, textOf(c))
		})
	}

	body := table.Find("tbody").First()
	if body.Length() == 0 {
		body = table
	}
	body.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		nonEmpty := false
		tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			t := textOf(c)
			if t != "" {
				nonEmpty = true
			}
			cells = append(cells, t)
		})
		if nonEmpty {
			rows = append(rows, cells)
		}
	})
	return headers, rows
}

// findValueInAnyTable scans every table in document order for a row×column
// intersection: the column whose header equals one of colLabels and the row
// whose first cell equals one of rowLabels, both lowercased. Synonyms are
// tried in caller order and the first header match wins. Tables without a
// header or body are skipped; the first table exposing a qualifying
// intersection ends the scan. Returns the raw cell text, or nil.
func findValueInAnyTable(doc *goquery.Document, rowLabels, colLabels []string) *string {
	rowL := lowerAll(rowLabels)
	colL := lowerAll(colLabels)

	var found *string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		headers, rows := tableMatrix(table)
		if len(headers) == 0 || len(rows) == 0 {
			return true
		}
		headersL := lowerAll(headers)

		col := -1
		for _, c := range colL {
			if i := indexOf(headersL, c); i >= 0 {
				col = i
				break
			}
		}
		if col < 0 {
			return true
		}

		for _, r := range rows {
			if len(r) == 0 {
				continue
			}
			if indexOf(rowL, strings.ToLower(r[0])) >= 0 && col < len(r) {
				v := r[col]
				found = &v
				return false
			}
		}
		return true
	})
	return found
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
