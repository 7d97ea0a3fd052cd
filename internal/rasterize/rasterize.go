// Package rasterize turns a local PDF (or single image) into per-page
// PNG bytes for the OCR adapters.
package rasterize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ktanaka/medscan/internal/canonical"
)

const (
	// MaxFileSize caps input files at 10 MiB, matching the vendor
	// per-request document limit.
	MaxFileSize = 10 * 1024 * 1024

	// renderDPI is the pdftoppm rasterization resolution.
	renderDPI = "300"
)

// allowedExtensions are the input types the pipeline accepts.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Input is a validated local document ready for rasterization.
type Input struct {
	Path  string
	id    string
	data  []byte
	isPDF bool
}

// DocumentID returns the stable hash of the raw file bytes. Identical
// input always maps to the same output artifacts.
func (in *Input) DocumentID() string { return in.id }

// Load validates and reads an input file.
func Load(path string) (*Input, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input not found: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("file size %d exceeds limit of %d bytes", info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}

	return &Input{
		Path:  path,
		id:    canonical.DocumentID(data),
		data:  data,
		isPDF: ext == ".pdf",
	}, nil
}

// PageCount returns the number of pages. Images count as one page.
func (in *Input) PageCount() (int, error) {
	if !in.isPDF {
		return 1, nil
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// Pages rasterizes the input to per-page PNG bytes, index 0 = page 1.
// PDF pages render concurrently with a worker per CPU.
func (in *Input) Pages(ctx context.Context) ([][]byte, error) {
	if !in.isPDF {
		// A single image is a one-page document as-is.
		return [][]byte{in.data}, nil
	}

	pageCount, err := in.PageCount()
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	type result struct {
		pageNum int
		data    []byte
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, runtime.NumCPU())

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageNum int) {
			defer func() { <-sem }() // release

			data, err := renderPage(ctx, in.Path, pageNum)
			results <- result{pageNum: pageNum, data: data, err: err}
		}(page)
	}

	pages := make([][]byte, pageCount)
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", r.pageNum, r.err)
		}
		pages[r.pageNum-1] = r.data
	}
	return pages, nil
}

// renderPage renders a single PDF page using pdftoppm (poppler-utils).
func renderPage(ctx context.Context, pdfPath string, pageNum int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "medscan-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := fmt.Sprintf("%d", pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", renderDPI,
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
