// Package audit maintains the append-only processing audit log.
//
// The log is a JSONL file with one entry per stage attempt. Entries are
// never mutated or deleted; each append is a single atomic write of one
// complete line so concurrent documents cannot interleave partial records.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileName is the audit log file name within the output directory.
const FileName = "audit_log.jsonl"

// Stage identifies a pipeline stage in an audit entry.
type Stage string

const (
	StageOCR  Stage = "OCR"
	StageNER  Stage = "NER"
	StageSink Stage = "SINK"
)

// Status reports the outcome of a stage attempt.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
)

// Entry is one audit log record.
type Entry struct {
	DocumentID string    `json:"document_id"`
	Stage      Stage     `json:"stage"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Detail     string    `json:"detail,omitempty"`
}

// Log appends entries to a JSONL file. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open returns a log that appends to the given path. The file is created
// on first append.
func Open(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry. The timestamp is set here if zero. The entry
// is serialized to a single line and written with one O_APPEND write.
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Read returns all entries currently in the log, in append order.
// Used by the audit CLI surface and tests.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("corrupt audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
