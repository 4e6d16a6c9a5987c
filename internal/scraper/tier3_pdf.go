package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/healthpulse/registry/internal/models"
)

// PDFScraper is Tier 3: download a statistical bulletin PDF and recover
// line-oriented tabular data from its content streams. Extraction quality
// varies with the publisher's layout, so results carry a per-page provenance
// field.
type PDFScraper struct {
	fetcher *fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewPDFScraper constructs the Tier 3 scraper.
func NewPDFScraper(f *fetcher, timeout time.Duration, logger *slog.Logger) *PDFScraper {
	return &PDFScraper{fetcher: f, timeout: timeout, logger: logger}
}

// Tier returns the tier this scraper implements.
func (s *PDFScraper) Tier() models.Tier { return models.TierDocumentExtraction }

// Extract downloads the PDF and parses its pages into records.
func (s *PDFScraper) Extract(ctx context.Context, desc Descriptor) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.fetcher.fetch(ctx, s.Tier(), desc.SourceURL, "application/pdf")
	if err != nil {
		return nil, err
	}

	records, err := parsePDFTables(body)
	if err != nil {
		return nil, newFailure(s.Tier(), FailParse, err)
	}
	if len(records) == 0 {
		return nil, newFailure(s.Tier(), FailEmpty, fmt.Errorf("no tabular data found in PDF"))
	}

	s.logger.Info("extracted records from PDF",
		"dataset_id", desc.DatasetID,
		"records", len(records),
	)

	return &Result{Records: records, RawContent: body}, nil
}

// parsePDFTables walks every page's content stream and keeps the text lines
// that look like data rows (a label followed by numeric columns).
func parsePDFTables(data []byte) ([]models.Fields, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var records []models.Fields
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		text := extractPageText(pdfCtx, pageNr)
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			fields, ok := parseDataLine(line)
			if !ok {
				continue
			}
			fields["_page"] = pageNr
			records = append(records, fields)
		}
	}
	return records, nil
}

// extractPageText pulls text out of one page's content stream operators.
func extractPageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	stream, err := io.ReadAll(r)
	if err != nil || len(stream) == 0 {
		return ""
	}
	return textFromContentStream(stream)
}

// pdfStringRe matches PDF string literals: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// textFromContentStream parses the Tj/TJ/'/T* text-showing operators out of a
// decoded content stream.
func textFromContentStream(stream []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(stream, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")),
			bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// decodePDFString resolves basic PDF string escape sequences, including octal
// escapes like \040.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// parseDataLine splits a text line on runs of whitespace and accepts it as a
// data row when it ends in at least one numeric column preceded by a label.
func parseDataLine(line string) (models.Fields, bool) {
	tokens := strings.FieldsFunc(line, unicode.IsSpace)
	if len(tokens) < 2 {
		return nil, false
	}

	// Count trailing numeric tokens.
	numeric := 0
	for i := len(tokens) - 1; i >= 0; i-- {
		if _, err := strconv.ParseFloat(normalizeNumber(tokens[i]), 64); err != nil {
			break
		}
		numeric++
	}
	if numeric == 0 || numeric == len(tokens) {
		return nil, false
	}

	label := strings.Join(tokens[:len(tokens)-numeric], " ")
	fields := models.Fields{"label": label}
	for i, tok := range tokens[len(tokens)-numeric:] {
		v, _ := strconv.ParseFloat(normalizeNumber(tok), 64)
		fields[fmt.Sprintf("value_%d", i)] = v
	}
	return fields, true
}

// normalizeNumber strips thousands separators and a trailing percent sign.
func normalizeNumber(tok string) string {
	tok = strings.ReplaceAll(tok, ",", "")
	return strings.TrimSuffix(tok, "%")
}
