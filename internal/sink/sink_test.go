package sink

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ktanaka/medscan/internal/audit"
	"github.com/ktanaka/medscan/internal/canonical"
	"github.com/ktanaka/medscan/internal/home"
)

func newTestSink(t *testing.T) (*Sink, *home.Dir) {
	t.Helper()
	dir, err := home.New(filepath.Join(t.TempDir(), "medscan"))
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatal(err)
	}
	return New(dir, audit.Open(dir.AuditLogPath()), nil), dir
}

func testDocument() *canonical.Document {
	return &canonical.Document{
		DocumentID: "deadbeef00112233",
		Pages: []canonical.PageText{
			{PageNumber: 1, Text: "Lisinopril 10mg"},
			{PageNumber: 2, Text: "follow up"},
		},
		Entities: []canonical.Entity{
			{Kind: canonical.KindMedication, Value: "Lisinopril", SourcePage: 1, Confidence: 0.95},
			{Kind: canonical.KindOther, Value: "follow up", SourcePage: 2, Confidence: 0.4},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSinkWriteJSON(t *testing.T) {
	s, dir := newTestSink(t)
	doc := testDocument()

	path, err := s.Write(doc, FormatJSON)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if path != dir.StructuredPath(doc.DocumentID) {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed canonical.Document
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	// JSON keeps Other entities; FHIR drops them.
	if len(parsed.Entities) != 2 {
		t.Errorf("JSON entities = %d, want 2", len(parsed.Entities))
	}

	entries, err := audit.Read(dir.AuditLogPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Stage != audit.StageSink || entries[0].Status != audit.StatusOK {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestSinkWriteFHIR(t *testing.T) {
	s, dir := newTestSink(t)
	doc := testDocument()

	path, err := s.Write(doc, FormatFHIR)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if path != dir.FHIRPath(doc.DocumentID) {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var bundle map[string]any
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatal(err)
	}
	if bundle["resourceType"] != "Bundle" {
		t.Errorf("resourceType = %v", bundle["resourceType"])
	}
	entries := bundle["entry"].([]any)
	if len(entries) != 1 {
		t.Fatalf("FHIR entries = %d, want 1 (Other dropped)", len(entries))
	}
	res := entries[0].(map[string]any)["resource"].(map[string]any)
	if res["resourceType"] != "MedicationStatement" {
		t.Errorf("resourceType = %v", res["resourceType"])
	}
}

func TestSinkWriteFailureAudited(t *testing.T) {
	tmp := t.TempDir()
	dir, err := home.New(filepath.Join(tmp, "medscan"))
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatal(err)
	}
	// Audit log goes elsewhere so it stays writable while output fails.
	auditPath := filepath.Join(tmp, "audit_log.jsonl")
	s := New(dir, audit.Open(auditPath), nil)

	// Make the output directory read-only to force a write failure.
	if err := os.Chmod(dir.OutputPath(), 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir.OutputPath(), 0o755) })

	_, err = s.Write(testDocument(), FormatJSON)
	if err == nil {
		t.Fatal("expected write failure")
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Errorf("error = %T, want *IOError", err)
	}

	entries, err := audit.Read(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != audit.StatusFailed {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestWriteRaw(t *testing.T) {
	s, dir := newTestSink(t)

	path, err := s.WriteRaw("abc", []canonical.PageText{{PageNumber: 1, Text: "hi"}})
	if err != nil {
		t.Fatalf("WriteRaw() error = %v", err)
	}
	if path != dir.RawResultsPath("abc") {
		t.Errorf("path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("raw artifact missing: %v", err)
	}

	// Raw writes are not audited.
	entries, err := audit.Read(dir.AuditLogPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(entries))
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat("json"); err != nil {
		t.Errorf("json: %v", err)
	}
	if _, err := ParseFormat("fhir"); err != nil {
		t.Errorf("fhir: %v", err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("xml should be rejected")
	}
}
