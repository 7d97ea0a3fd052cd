package home

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ktanaka/medscan/internal/audit"
)

const (
	// DefaultDirName is the default name for the medscan home directory.
	DefaultDirName = ".medscan"

	// OutputDirName is the subdirectory for structured output, raw
	// adapter results and the audit log.
	OutputDirName = "output"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the medscan home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.medscan).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// OutputPath returns the path to the output directory.
func (d *Dir) OutputPath() string {
	return filepath.Join(d.path, OutputDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.OutputPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// AuditLogPath returns the path to the append-only audit log.
func (d *Dir) AuditLogPath() string {
	return filepath.Join(d.OutputPath(), audit.FileName)
}

// StructuredPath returns the canonical JSON output path for a document.
func (d *Dir) StructuredPath(documentID string) string {
	return filepath.Join(d.OutputPath(), fmt.Sprintf("%s_structured.json", documentID))
}

// FHIRPath returns the FHIR-shaped output path for a document.
func (d *Dir) FHIRPath(documentID string) string {
	return filepath.Join(d.OutputPath(), fmt.Sprintf("%s.fhir.json", documentID))
}

// RawResultsPath returns the raw adapter output path for a document.
// Raw results are an audit/debug artifact, independent of structured output.
func (d *Dir) RawResultsPath(documentID string) string {
	return filepath.Join(d.OutputPath(), fmt.Sprintf("vision_results_%s.json", documentID))
}
