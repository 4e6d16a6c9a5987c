package models

import "time"

// DatasetVersion is an immutable snapshot descriptor of a dataset's content
// at a point in time. Versions form an append-only, strictly increasing
// sequence per dataset; a new version exists only when the content hash or
// schema fingerprint changed relative to the immediately preceding one.
type DatasetVersion struct {
	ID                int       `json:"-"`
	DatasetID         string    `json:"dataset_id"`
	VersionNumber     int       `json:"version_number"`
	ContentHash       string    `json:"content_hash"`       // SHA-256 over the normalized record payload
	SchemaFingerprint string    `json:"schema_fingerprint"` // SHA-256 over the sorted field name/type signature
	RecordCount       int       `json:"record_count"`
	ContentSize       int       `json:"content_size,omitempty"` // raw payload size in bytes
	CreatedAt         time.Time `json:"created_at"`
}

// Fields is the opaque key/value payload of one extracted row.
type Fields map[string]any

// ScrapeRecord is a normalized row extracted from a dataset payload. Records
// are owned by the version that produced them and are never mutated, only
// superseded by records of a later version.
type ScrapeRecord struct {
	ID        int            `json:"-"`
	DatasetID string         `json:"dataset_id"`
	VersionID int            `json:"-"`
	Data      Fields         `json:"data"`
	Metadata  RecordMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// RecordMetadata is the mandatory provenance block attached to every stored
// record.
type RecordMetadata struct {
	DatasetID    string    `json:"dataset_id"`
	SourceURL    string    `json:"source_url"`
	ScrapeMethod string    `json:"scrape_method"`
	Confidence   string    `json:"confidence"`
	RetrievedAt  time.Time `json:"retrieved_at"`
}
