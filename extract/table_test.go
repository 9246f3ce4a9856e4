package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestTableMatrix(t *testing.T) {
	doc := mustDoc(t, `
		<table>
			<thead><tr><th></th><th>Fonds</th><th>Benchmark</th></tr></thead>
			<tbody>
				<tr><td>1 an</td><td>4,50 %</td><td>3,20 %</td></tr>
				<tr><td></td><td> </td><td></td></tr>
				<tr><td>3 ans</td><td>9,10 %</td><td>8,00 %</td></tr>
			</tbody>
		</table>`)

	headers, rows := tableMatrix(doc.Find("table").First())
	if len(headers) != 3 || headers[1] != "Fonds" {
		t.Fatalf("headers = %v", headers)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (empty row dropped): %v", len(rows), rows)
	}
	if rows[0][0] != "1 an" || rows[0][1] != "4,50 %" {
		t.Fatalf("row 0 = %v", rows[0])
	}
}

func TestTableMatrixNoThead(t *testing.T) {
	doc := mustDoc(t, `
		<table>
			<tr><td>Fonds</td><td>2,00 %</td></tr>
		</table>`)

	headers, rows := tableMatrix(doc.Find("table").First())
	if headers != nil {
		t.Fatalf("expected no headers, got %v", headers)
	}
	if len(rows) != 1 || rows[0][1] != "2,00 %" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestTableMatrixNormalizesWhitespace(t *testing.T) {
	doc := mustDoc(t, `
		<table><thead><tr><th>  1
		an  </th></tr></thead><tbody><tr><td> 4,50&nbsp;% </td></tr></tbody></table>`)

	headers, rows := tableMatrix(doc.Find("table").First())
	if headers[0] != "1 an" {
		t.Fatalf("header = %q", headers[0])
	}
	if rows[0][0] != "4,50 %" {
		t.Fatalf("cell = %q", rows[0][0])
	}
}

func TestFindValueInAnyTable(t *testing.T) {
	doc := mustDoc(t, `
		<table>
			<thead><tr><th></th><th>Fonds</th><th>Category</th></tr></thead>
			<tbody><tr><td>Fonds</td><td>2,00 %</td><td>1,50 %</td></tr></tbody>
		</table>`)

	got := findValueInAnyTable(doc, []string{"Fonds"}, []string{"Fonds"})
	if got == nil || *got != "2,00 %" {
		t.Fatalf("got %v, want 2,00 %%", got)
	}
}

func TestFindValueSynonymOrder(t *testing.T) {
	// Both "1 an" and "1y" are headers; the first synonym tried wins.
	doc := mustDoc(t, `
		<table>
			<thead><tr><th></th><th>1y</th><th>1 an</th></tr></thead>
			<tbody><tr><td>Fonds</td><td>9,99 %</td><td>4,50 %</td></tr></tbody>
		</table>`)

	got := findValueInAnyTable(doc, []string{"Fonds"}, []string{"1 an", "1y"})
	if got == nil || *got != "4,50 %" {
		t.Fatalf("got %v, want the '1 an' column", got)
	}
}

func TestFindValueSkipsUnqualifiedTables(t *testing.T) {
	// First table has no matching column, second has no header, third wins.
	doc := mustDoc(t, `
		<table>
			<thead><tr><th>Autre</th></tr></thead>
			<tbody><tr><td>Fonds</td></tr></tbody>
		</table>
		<table><tr><td>Fonds</td><td>1,00 %</td></tr></table>
		<table>
			<thead><tr><th></th><th>1 an</th></tr></thead>
			<tbody>
				<tr><td>Benchmark</td><td>3,20 %</td></tr>
				<tr><td>Fonds</td><td>4,50 %</td></tr>
			</tbody>
		</table>`)

	got := findValueInAnyTable(doc, []string{"Fonds", "Fund"}, []string{"1 an", "1 year", "1y"})
	if got == nil || *got != "4,50 %" {
		t.Fatalf("got %v, want 4,50 %%", got)
	}
}

func TestFindValueRowTooShort(t *testing.T) {
	doc := mustDoc(t, `
		<table>
			<thead><tr><th></th><th>X</th><th>1 an</th></tr></thead>
			<tbody><tr><td>Fonds</td><td>only-two-cells</td></tr></tbody>
		</table>`)

	if got := findValueInAnyTable(doc, []string{"Fonds"}, []string{"1 an"}); got != nil {
		t.Fatalf("got %v, want nil for a row shorter than the column index", got)
	}
}

func TestFindValueCaseInsensitiveLabels(t *testing.T) {
	doc := mustDoc(t, `
		<table>
			<thead><tr><th></th><th>FONDS</th></tr></thead>
			<tbody><tr><td>FUND</td><td>0,10 %</td></tr></tbody>
		</table>`)

	got := findValueInAnyTable(doc, []string{"Fonds", "Fund"}, []string{"Fonds"})
	if got == nil || *got != "0,10 %" {
		t.Fatalf("got %v, want 0,10 %%", got)
	}
}
