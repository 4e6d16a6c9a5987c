package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/healthpulse/registry/internal/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LoggingConfig{Level: slog.LevelInfo, Format: "json"})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("scrape completed", "dataset_id", "ds-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["service"] != serviceName {
		t.Errorf("service = %v, want %s", line["service"], serviceName)
	}
	if line["dataset_id"] != "ds-1" {
		t.Errorf("dataset_id = %v, want ds-1", line["dataset_id"])
	}
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LoggingConfig{Level: slog.LevelWarn, Format: "json"})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info line emitted below the configured level: %s", buf.String())
	}

	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warn line suppressed at the configured level")
	}
}

func TestNewWithWriterFormats(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"json", false},
		{"text", false},
		{"", false}, // unset falls back to JSON
		{"logfmt", true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		_, err := NewWithWriter(&buf, config.LoggingConfig{Format: tt.format})
		if (err != nil) != tt.wantErr {
			t.Errorf("format %q: err = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}
