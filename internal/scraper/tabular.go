package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/healthpulse/registry/internal/models"
)

// parseHTMLTables extracts every <table> in the document into records, one
// record per data row. Shared by the HTML and browser tiers.
func parseHTMLTables(html []byte) ([]models.Fields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var records []models.Fields
	doc.Find("table").Each(func(tableIdx int, table *goquery.Selection) {
		headers, bodyRows := tableHeaders(table)

		bodyRows.Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() == 0 {
				return
			}

			fields := make(models.Fields, cells.Length())
			empty := true
			cells.Each(func(i int, cell *goquery.Selection) {
				name := fmt.Sprintf("column_%d", i)
				if i < len(headers) {
					name = headers[i]
				}
				value := strings.TrimSpace(cell.Text())
				if value != "" {
					empty = false
				}
				fields[name] = value
			})
			if !empty {
				fields["_table"] = tableIdx
				records = append(records, fields)
			}
		})
	})

	return records, nil
}

// tableHeaders resolves column names for a table and returns the data rows.
// Header cells come from <th> elements when present, otherwise the first row
// is promoted to a header. Blank header cells fall back to column_N.
func tableHeaders(table *goquery.Selection) ([]string, *goquery.Selection) {
	rows := table.Find("tr")

	headerCells := table.Find("th")
	skipFirstRow := false
	if headerCells.Length() == 0 && rows.Length() > 1 {
		headerCells = rows.First().Find("td")
		skipFirstRow = true
	}

	headers := make([]string, 0, headerCells.Length())
	headerCells.Each(func(i int, cell *goquery.Selection) {
		name := strings.TrimSpace(cell.Text())
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		headers = append(headers, name)
	})

	bodyRows := rows.FilterFunction(func(i int, row *goquery.Selection) bool {
		if skipFirstRow && i == 0 {
			return false
		}
		// Pure header rows carry no data.
		return row.Find("td").Length() > 0
	})

	return headers, bodyRows
}
