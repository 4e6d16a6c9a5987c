package models

import "testing"

func TestTierValid(t *testing.T) {
	for tier := MinTier; tier <= MaxTier; tier++ {
		if !tier.Valid() {
			t.Errorf("tier %d should be valid", tier)
		}
	}
	for _, tier := range []Tier{0, 6, -1} {
		if tier.Valid() {
			t.Errorf("tier %d should be invalid", tier)
		}
	}
}

func TestTierLabels(t *testing.T) {
	tests := []struct {
		tier       Tier
		str        string
		method     string
		confidence string
	}{
		{TierStructuredAPI, "tier1_api", "api", "high"},
		{TierFileDownload, "tier2_direct_download", "direct_download", "high"},
		{TierDocumentExtraction, "tier3_pdf_extraction", "pdf_extraction", "medium"},
		{TierMarkupParsing, "tier4_html_parsing", "html_parsing", "medium"},
		{TierBrowserAutomation, "tier5_browser_automation", "browser_automation", "low"},
	}

	for _, tt := range tests {
		if got := tt.tier.String(); got != tt.str {
			t.Errorf("Tier(%d).String() = %s, want %s", tt.tier, got, tt.str)
		}
		if got := tt.tier.Method(); got != tt.method {
			t.Errorf("Tier(%d).Method() = %s, want %s", tt.tier, got, tt.method)
		}
		if got := tt.tier.Confidence(); got != tt.confidence {
			t.Errorf("Tier(%d).Confidence() = %s, want %s", tt.tier, got, tt.confidence)
		}
	}
}

func TestDatasetValidate(t *testing.T) {
	valid := Dataset{
		DatasetID:    "cpi-monthly",
		Title:        "Consumer Price Index",
		SourceURL:    "https://open.dosm.gov.my/api/cpi",
		ScrapingTier: TierStructuredAPI,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid dataset rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Dataset)
	}{
		{"missing dataset_id", func(d *Dataset) { d.DatasetID = "" }},
		{"missing title", func(d *Dataset) { d.Title = "" }},
		{"missing source_url", func(d *Dataset) { d.SourceURL = "" }},
		{"tier out of range", func(d *Dataset) { d.ScrapingTier = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := valid
			tt.mutate(&ds)
			if err := ds.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
