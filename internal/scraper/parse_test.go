package scraper

import (
	"testing"
)

func TestDecodeAPIResponseEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "bare array", body: `[{"a":1},{"a":2}]`, want: 2},
		{name: "data envelope", body: `{"data":[{"a":1}]}`, want: 1},
		{name: "results envelope", body: `{"results":[{"a":1},{"a":2},{"a":3}]}`, want: 3},
		{name: "records envelope", body: `{"records":[{"a":1}]}`, want: 1},
		{name: "items envelope", body: `{"items":[{"a":1}]}`, want: 1},
		{name: "single object", body: `{"a":1,"b":2}`, want: 1},
		{name: "scalar array", body: `[1,2,3]`, wantErr: true},
		{name: "scalar", body: `42`, wantErr: true},
		{name: "invalid json", body: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := decodeAPIResponse([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeAPIResponse() error = %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("records = %d, want %d", len(records), tt.want)
			}
		})
	}
}

func TestParseDelimited(t *testing.T) {
	csv := "state,year,rate\nJohor,2023,4.1\nKedah,2023,3.8\n"
	records, err := parseDelimited([]byte(csv))
	if err != nil {
		t.Fatalf("parseDelimited() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if got := records[0]["state"]; got != "Johor" {
		t.Errorf("records[0][state] = %v, want Johor", got)
	}
	if got := records[1]["rate"]; got != "3.8" {
		t.Errorf("records[1][rate] = %v, want 3.8", got)
	}
}

func TestParseDelimitedSniffsTabs(t *testing.T) {
	tsv := "state\tyear\nJohor\t2023\n"
	records, err := parseDelimited([]byte(tsv))
	if err != nil {
		t.Fatalf("parseDelimited() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got := records[0]["year"]; got != "2023" {
		t.Errorf("records[0][year] = %v, want 2023", got)
	}
}

func TestParseDelimitedSkipsEmptyRows(t *testing.T) {
	csv := "a,b\n1,2\n,\n3,4\n"
	records, err := parseDelimited([]byte(csv))
	if err != nil {
		t.Fatalf("parseDelimited() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2 (empty row dropped)", len(records))
	}
}

func TestParseHTMLTablesWithHeaderCells(t *testing.T) {
	html := `<html><body><table>
		<tr><th>State</th><th>Rate</th></tr>
		<tr><td>Johor</td><td>4.1</td></tr>
		<tr><td>Kedah</td><td>3.8</td></tr>
	</table></body></html>`

	records, err := parseHTMLTables([]byte(html))
	if err != nil {
		t.Fatalf("parseHTMLTables() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if got := records[0]["State"]; got != "Johor" {
		t.Errorf("records[0][State] = %v, want Johor", got)
	}
	if got := records[1]["Rate"]; got != "3.8" {
		t.Errorf("records[1][Rate] = %v, want 3.8", got)
	}
}

func TestParseHTMLTablesPromotesFirstRow(t *testing.T) {
	html := `<table>
		<tr><td>state</td><td>rate</td></tr>
		<tr><td>Johor</td><td>4.1</td></tr>
	</table>`

	records, err := parseHTMLTables([]byte(html))
	if err != nil {
		t.Fatalf("parseHTMLTables() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got := records[0]["state"]; got != "Johor" {
		t.Errorf("records[0][state] = %v, want Johor", got)
	}
}

func TestParseHTMLTablesFallbackColumnNames(t *testing.T) {
	html := `<table>
		<tr><th></th><th>Rate</th></tr>
		<tr><td>Johor</td><td>4.1</td></tr>
	</table>`

	records, err := parseHTMLTables([]byte(html))
	if err != nil {
		t.Fatalf("parseHTMLTables() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got := records[0]["column_0"]; got != "Johor" {
		t.Errorf("records[0][column_0] = %v, want Johor", got)
	}
}

func TestParseHTMLTablesNoTables(t *testing.T) {
	records, err := parseHTMLTables([]byte(`<html><body><p>nothing here</p></body></html>`))
	if err != nil {
		t.Fatalf("parseHTMLTables() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want 0", len(records))
	}
}

func TestParseDataLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantOK bool
		label  string
	}{
		{name: "label with numbers", line: "Johor 4.1 3.8", wantOK: true, label: "Johor"},
		{name: "multi word label", line: "Kuala Lumpur 2.9", wantOK: true, label: "Kuala Lumpur"},
		{name: "thousands separator", line: "Selangor 1,234", wantOK: true, label: "Selangor"},
		{name: "percent value", line: "Perak 4.5%", wantOK: true, label: "Perak"},
		{name: "all text", line: "Unemployment Rate by State", wantOK: false},
		{name: "all numbers", line: "1 2 3", wantOK: false},
		{name: "single token", line: "Johor", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, ok := parseDataLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("parseDataLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if ok && fields["label"] != tt.label {
				t.Errorf("label = %v, want %v", fields["label"], tt.label)
			}
		})
	}
}
