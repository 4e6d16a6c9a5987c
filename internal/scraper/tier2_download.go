package scraper

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/healthpulse/registry/internal/models"
)

// DownloadScraper is Tier 2: a direct file download from the publisher,
// typically CSV. The payload is parsed into records keyed by header row.
type DownloadScraper struct {
	fetcher *fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewDownloadScraper constructs the Tier 2 scraper.
func NewDownloadScraper(f *fetcher, timeout time.Duration, logger *slog.Logger) *DownloadScraper {
	return &DownloadScraper{fetcher: f, timeout: timeout, logger: logger}
}

// Tier returns the tier this scraper implements.
func (s *DownloadScraper) Tier() models.Tier { return models.TierFileDownload }

// Extract downloads the file and parses it according to its extension.
func (s *DownloadScraper) Extract(ctx context.Context, desc Descriptor) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.fetcher.fetch(ctx, s.Tier(), desc.SourceURL, "text/csv, application/octet-stream")
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(strings.SplitN(desc.SourceURL, "?", 2)[0]))
	var records []models.Fields
	switch ext {
	case ".csv", ".tsv", "":
		records, err = parseDelimited(body)
	default:
		err = fmt.Errorf("unsupported download format %q", ext)
	}
	if err != nil {
		return nil, newFailure(s.Tier(), FailParse, err)
	}
	if len(records) == 0 {
		return nil, newFailure(s.Tier(), FailEmpty, fmt.Errorf("downloaded file has no data rows"))
	}

	s.logger.Info("extracted records from download",
		"dataset_id", desc.DatasetID,
		"records", len(records),
	)

	return &Result{Records: records, RawContent: body}, nil
}

// parseDelimited parses CSV or TSV content. The delimiter is sniffed from the
// header line, and the header names become the record keys.
func parseDelimited(body []byte) ([]models.Fields, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.Comma = sniffDelimiter(body)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		header[i] = name
	}

	var records []models.Fields
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data row: %w", err)
		}

		fields := make(models.Fields, len(header))
		empty := true
		for i, name := range header {
			var value string
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			if value != "" {
				empty = false
			}
			fields[name] = value
		}
		if !empty {
			records = append(records, fields)
		}
	}
	return records, nil
}

// sniffDelimiter picks tab, semicolon, or comma based on the first line.
func sniffDelimiter(body []byte) rune {
	line := body
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		line = body[:i]
	}
	if bytes.Count(line, []byte("\t")) > bytes.Count(line, []byte(",")) {
		return '\t'
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}
