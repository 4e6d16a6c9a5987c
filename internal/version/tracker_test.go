package version

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/healthpulse/registry/internal/database"
	"github.com/healthpulse/registry/internal/models"
)

func testTracker() (*Tracker, *database.MemoryVersionRepository) {
	repo := database.NewMemoryVersionRepository()
	return NewTracker(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func testMeta() models.RecordMetadata {
	return models.RecordMetadata{
		DatasetID:    "ds-1",
		SourceURL:    "https://open.dosm.gov.my/api/data",
		ScrapeMethod: "api",
		Confidence:   "high",
		RetrievedAt:  time.Now().UTC(),
	}
}

func TestRecordCreatesFirstVersion(t *testing.T) {
	tracker, repo := testTracker()

	records := []models.Fields{{"state": "Johor", "rate": 4.1}}
	out, err := tracker.Record(context.Background(), "ds-1", records, testMeta(), 128, false)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !out.New {
		t.Error("New = false for the first version")
	}
	if out.Version.VersionNumber != 1 {
		t.Errorf("VersionNumber = %d, want 1", out.Version.VersionNumber)
	}
	if out.Version.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", out.Version.RecordCount)
	}

	stored := repo.RecordsForVersion(out.Version.ID)
	if len(stored) != 1 {
		t.Fatalf("stored records = %d, want 1", len(stored))
	}
	if stored[0].Metadata.ScrapeMethod != "api" {
		t.Errorf("Metadata.ScrapeMethod = %q, want api", stored[0].Metadata.ScrapeMethod)
	}
}

func TestRecordUnchangedContentCreatesNoVersion(t *testing.T) {
	tracker, _ := testTracker()
	ctx := context.Background()

	records := []models.Fields{{"state": "Johor", "rate": 4.1}, {"state": "Kedah", "rate": 3.8}}
	first, err := tracker.Record(ctx, "ds-1", records, testMeta(), 256, false)
	if err != nil {
		t.Fatal(err)
	}

	second, err := tracker.Record(ctx, "ds-1", records, testMeta(), 256, false)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if second.New {
		t.Error("New = true for identical content")
	}
	if second.Version.VersionNumber != first.Version.VersionNumber {
		t.Errorf("VersionNumber = %d, want %d", second.Version.VersionNumber, first.Version.VersionNumber)
	}
}

func TestRecordReorderedContentCreatesNoVersion(t *testing.T) {
	tracker, _ := testTracker()
	ctx := context.Background()

	a := models.Fields{"state": "Johor", "rate": 4.1}
	b := models.Fields{"state": "Kedah", "rate": 3.8}

	if _, err := tracker.Record(ctx, "ds-1", []models.Fields{a, b}, testMeta(), 256, false); err != nil {
		t.Fatal(err)
	}
	out, err := tracker.Record(ctx, "ds-1", []models.Fields{b, a}, testMeta(), 256, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.New {
		t.Error("reordered rows registered as a new version")
	}
}

func TestRecordChangedContentIncrementsVersion(t *testing.T) {
	tracker, _ := testTracker()
	ctx := context.Background()

	if _, err := tracker.Record(ctx, "ds-1", []models.Fields{{"rate": 4.1}}, testMeta(), 64, false); err != nil {
		t.Fatal(err)
	}
	out, err := tracker.Record(ctx, "ds-1", []models.Fields{{"rate": 4.2}}, testMeta(), 64, false)
	if err != nil {
		t.Fatal(err)
	}
	if !out.New {
		t.Fatal("New = false for changed content")
	}
	if out.Version.VersionNumber != 2 {
		t.Errorf("VersionNumber = %d, want 2", out.Version.VersionNumber)
	}
}

func TestRecordStorageFailureLeavesNoVersion(t *testing.T) {
	tracker, repo := testTracker()
	repo.FailAppend = errors.New("disk full")

	_, err := tracker.Record(context.Background(), "ds-1", []models.Fields{{"a": 1}}, testMeta(), 32, false)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Record() error = %v, want *StorageError", err)
	}

	repo.FailAppend = nil
	latest, err := repo.Latest(context.Background(), "ds-1")
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Errorf("version %d exists after a failed write", latest.VersionNumber)
	}
}

func TestContentHashOrderIndependent(t *testing.T) {
	a := models.Fields{"state": "Johor", "rate": 4.1}
	b := models.Fields{"state": "Kedah", "rate": 3.8}

	h1 := ContentHash([]models.Fields{a, b})
	h2 := ContentHash([]models.Fields{b, a})
	if h1 != h2 {
		t.Errorf("hash differs across row order: %s vs %s", h1, h2)
	}

	h3 := ContentHash([]models.Fields{a})
	if h1 == h3 {
		t.Error("hash identical for different record sets")
	}
}

func TestSchemaFingerprint(t *testing.T) {
	base := []models.Fields{{"state": "Johor", "rate": 4.1}}

	valueChange := []models.Fields{{"state": "Kedah", "rate": 9.9}}
	if SchemaFingerprint(base) != SchemaFingerprint(valueChange) {
		t.Error("fingerprint changed on a value-only change")
	}

	newField := []models.Fields{{"state": "Johor", "rate": 4.1, "year": 2023.0}}
	if SchemaFingerprint(base) == SchemaFingerprint(newField) {
		t.Error("fingerprint stable despite an added field")
	}

	retyped := []models.Fields{{"state": "Johor", "rate": "4.1"}}
	if SchemaFingerprint(base) == SchemaFingerprint(retyped) {
		t.Error("fingerprint stable despite a retyped field")
	}
}

func TestSchemaFingerprintMixedTypesOrderIndependent(t *testing.T) {
	numberFirst := []models.Fields{{"a": 1}, {"a": "x"}}
	stringFirst := []models.Fields{{"a": "x"}, {"a": 1}}

	if SchemaFingerprint(numberFirst) != SchemaFingerprint(stringFirst) {
		t.Error("fingerprint depends on which row's type is seen first")
	}
	if SchemaFingerprint(numberFirst) == SchemaFingerprint([]models.Fields{{"a": 1}}) {
		t.Error("mixed-type field fingerprints like a single-type field")
	}
}

func TestRecordReorderedMixedTypesCreatesNoVersion(t *testing.T) {
	tracker, repo := testTracker()
	ctx := context.Background()

	a := models.Fields{"a": 1}
	b := models.Fields{"a": "x"}

	if _, err := tracker.Record(ctx, "ds-1", []models.Fields{a, b}, testMeta(), 64, false); err != nil {
		t.Fatal(err)
	}
	out, err := tracker.Record(ctx, "ds-1", []models.Fields{b, a}, testMeta(), 64, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.New {
		t.Error("reordered identical payload registered as a new version")
	}
	if out.Version.VersionNumber != 1 {
		t.Errorf("VersionNumber = %d, want 1", out.Version.VersionNumber)
	}

	versions, err := repo.ListVersions(ctx, "ds-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("stored versions = %d, want 1", len(versions))
	}
}

func TestSchemaFingerprintEmptyPayload(t *testing.T) {
	empty := SchemaFingerprint(nil)
	if empty != SchemaFingerprint([]models.Fields{}) {
		t.Error("nil and empty slices fingerprint differently")
	}
	if empty == SchemaFingerprint([]models.Fields{{"a": 1}}) {
		t.Error("empty sentinel collides with a real schema")
	}
}
