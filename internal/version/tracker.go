// Package version decides when scraped content constitutes a new dataset
// version. Hashing is order-independent so publisher-side row reordering does
// not register as change, and version history is append-only.
package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/healthpulse/registry/internal/models"
)

// emptySchema is the fingerprint input for a payload with no records.
const emptySchema = "empty"

// Outcome reports what Record did with a scrape result.
type Outcome struct {
	// New is true when a version was appended; false means the content was
	// identical to the latest stored version.
	New bool

	// Version is the version the content now corresponds to: the freshly
	// appended one, or the existing latest on no change.
	Version *models.DatasetVersion
}

// StorageError wraps a failed version write so callers can distinguish it
// from extraction failures. No partial state exists after one.
type StorageError struct {
	DatasetID string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("version storage failed for %s: %v", e.DatasetID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Tracker compares incoming content against the stored history and appends
// versions when content changed.
type Tracker struct {
	versions models.VersionRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker constructs a Tracker on top of the version repository.
func NewTracker(versions models.VersionRepository, logger *slog.Logger) *Tracker {
	return &Tracker{versions: versions, logger: logger, now: time.Now}
}

// Record hashes the extracted records, compares against the dataset's latest
// version, and appends a new version when the content or schema changed.
// force marks an operator-requested scrape in the log trail; it never
// fabricates a version for unchanged content.
func (t *Tracker) Record(ctx context.Context, datasetID string, records []models.Fields, meta models.RecordMetadata, contentSize int, force bool) (*Outcome, error) {
	contentHash := ContentHash(records)
	fingerprint := SchemaFingerprint(records)

	latest, err := t.versions.Latest(ctx, datasetID)
	if err != nil {
		return nil, &StorageError{DatasetID: datasetID, Err: fmt.Errorf("load latest version: %w", err)}
	}

	if latest != nil && latest.ContentHash == contentHash && latest.SchemaFingerprint == fingerprint {
		t.logger.Info("content unchanged, no version created",
			"dataset_id", datasetID,
			"version", latest.VersionNumber,
			"forced", force,
		)
		return &Outcome{New: false, Version: latest}, nil
	}

	next := 1
	if latest != nil {
		next = latest.VersionNumber + 1
	}

	version := &models.DatasetVersion{
		DatasetID:         datasetID,
		VersionNumber:     next,
		ContentHash:       contentHash,
		SchemaFingerprint: fingerprint,
		RecordCount:       len(records),
		ContentSize:       contentSize,
		CreatedAt:         t.now().UTC(),
	}

	rows := make([]models.ScrapeRecord, len(records))
	for i, fields := range records {
		rows[i] = models.ScrapeRecord{
			DatasetID: datasetID,
			Data:      fields,
			Metadata:  meta,
			CreatedAt: version.CreatedAt,
		}
	}

	if err := t.versions.AppendVersion(ctx, version, rows); err != nil {
		return nil, &StorageError{DatasetID: datasetID, Err: err}
	}

	t.logger.Info("new dataset version recorded",
		"dataset_id", datasetID,
		"version", version.VersionNumber,
		"records", version.RecordCount,
	)

	return &Outcome{New: true, Version: version}, nil
}

// ContentHash computes an order-independent SHA-256 over the records: each
// record is canonicalized to JSON with sorted keys, digested, and the sorted
// per-record digests are hashed together. Two payloads with the same records
// in different order hash identically.
func ContentHash(records []models.Fields) string {
	digests := make([]string, len(records))
	for i, record := range records {
		digests[i] = recordDigest(record)
	}
	sort.Strings(digests)

	h := sha256.New()
	for _, d := range digests {
		h.Write([]byte(d))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// recordDigest canonicalizes one record. encoding/json marshals maps with
// sorted keys, which makes the per-record form deterministic.
func recordDigest(record models.Fields) string {
	raw, err := json.Marshal(record)
	if err != nil {
		// Fields values come from JSON/CSV/HTML decoding and always marshal;
		// fall back to the formatted value rather than dropping the record.
		raw = []byte(fmt.Sprintf("%v", record))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// SchemaFingerprint hashes the sorted field-name/type signature of the
// records. A value-only change keeps the fingerprint stable; adding,
// removing, or retyping a field changes it. Empty payloads fingerprint the
// "empty" sentinel.
func SchemaFingerprint(records []models.Fields) string {
	if len(records) == 0 {
		sum := sha256.Sum256([]byte(emptySchema))
		return hex.EncodeToString(sum[:])
	}

	// The union of fields across records. A field may carry different JSON
	// types in different rows, so keep every observed type per field; record
	// order must never influence the signature.
	types := make(map[string]map[string]bool)
	for _, record := range records {
		for name, value := range record {
			if types[name] == nil {
				types[name] = make(map[string]bool)
			}
			types[name][jsonTypeOf(value)] = true
		}
	}

	pairs := make([]string, 0, len(types))
	for name, observed := range types {
		labels := make([]string, 0, len(observed))
		for typ := range observed {
			labels = append(labels, typ)
		}
		sort.Strings(labels)
		pairs = append(pairs, name+":"+strings.Join(labels, "|"))
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, ",")))
	return hex.EncodeToString(sum[:])
}

// jsonTypeOf maps a decoded value to its JSON type name.
func jsonTypeOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, float32, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any, models.Fields:
		return "object"
	default:
		return "string"
	}
}
