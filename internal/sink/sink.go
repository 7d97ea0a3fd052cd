// Package sink serializes finalized canonical documents to disk and
// records every write attempt in the audit log.
package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ktanaka/medscan/internal/audit"
	"github.com/ktanaka/medscan/internal/canonical"
	"github.com/ktanaka/medscan/internal/fhir"
	"github.com/ktanaka/medscan/internal/home"
)

// Format selects the output serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatFHIR Format = "fhir"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatFHIR:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %q (want json or fhir)", s)
	}
}

// IOError is a classified sink failure.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("write failed: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Sink writes document artifacts into the home output directory.
type Sink struct {
	home   *home.Dir
	log    *audit.Log
	logger *slog.Logger
}

// New creates a sink writing under the given home directory, auditing to
// the given log.
func New(h *home.Dir, log *audit.Log, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{home: h, log: log, logger: logger}
}

// Write serializes doc in the requested format and returns the output
// path. Exactly one audit entry is appended per call, success or failure,
// before returning. The document must already be finalized; Write never
// mutates it.
func (s *Sink) Write(doc *canonical.Document, format Format) (string, error) {
	path, err := s.write(doc, format)

	entry := audit.Entry{
		DocumentID: doc.DocumentID,
		Stage:      audit.StageSink,
		Status:     audit.StatusOK,
		Detail:     string(format),
	}
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.Detail = err.Error()
	}
	if aerr := s.log.Append(entry); aerr != nil {
		s.logger.Error("failed to append audit entry", "document_id", doc.DocumentID, "error", aerr)
	}

	if err != nil {
		return "", err
	}
	s.logger.Info("wrote structured output",
		"document_id", doc.DocumentID, "format", format, "path", path)
	return path, nil
}

func (s *Sink) write(doc *canonical.Document, format Format) (string, error) {
	var (
		path    string
		payload any
	)
	switch format {
	case FormatFHIR:
		path = s.home.FHIRPath(doc.DocumentID)
		payload = fhir.FromDocument(doc)
	default:
		path = s.home.StructuredPath(doc.DocumentID)
		payload = doc
	}

	if err := writeJSONAtomic(path, payload); err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	return path, nil
}

// WriteRaw persists the per-page OCR output as the raw-results debug
// artifact. Raw results are independent of structured output: a later
// sink failure does not roll them back. Not audited; the OCR stage entry
// covers this artifact.
func (s *Sink) WriteRaw(documentID string, pages []canonical.PageText) (string, error) {
	path := s.home.RawResultsPath(documentID)
	payload := rawResults{DocumentID: documentID, Pages: pages}
	if err := writeJSONAtomic(path, payload); err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	return path, nil
}

// rawResults is the shape of the vision_results_<id>.json artifact.
type rawResults struct {
	DocumentID string               `json:"document_id"`
	Pages      []canonical.PageText `json:"pages"`
}

// writeJSONAtomic marshals payload and writes it via temp file + rename
// so a crashed write never leaves a truncated artifact behind.
func writeJSONAtomic(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
