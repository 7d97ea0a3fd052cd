package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ktanaka/medscan/internal/canonical"
)

const MockName = "mock"

// MockOCR is an OCRProvider for testing.
type MockOCR struct {
	// Configurable behavior
	Latency    time.Duration
	FailFirst  int            // Fail the first N calls with a transient error
	ShouldFail bool           // Fail every call
	Pages      map[int]string // Page number -> text to return
	Boxes      []canonical.BoundingBox

	// State
	callCount atomic.Int64
}

// NewMockOCR creates a mock OCR provider with sensible defaults.
func NewMockOCR() *MockOCR {
	return &MockOCR{
		Pages: map[int]string{},
	}
}

// Name returns the provider identifier.
func (m *MockOCR) Name() string { return MockName }

// RequestsPerSecond returns an effectively unthrottled rate for tests.
func (m *MockOCR) RequestsPerSecond() float64 { return 1000 }

// CallCount returns the number of RunOCR calls made.
func (m *MockOCR) CallCount() int { return int(m.callCount.Load()) }

// RunOCR returns the scripted text for pageNum.
func (m *MockOCR) RunOCR(ctx context.Context, image []byte, pageNum int) (*canonical.PageText, error) {
	count := m.callCount.Add(1)

	if len(image) == 0 {
		return nil, &AdapterError{Kind: InvalidInput, Provider: MockName,
			Err: fmt.Errorf("empty page image")}
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.ShouldFail || int(count) <= m.FailFirst {
		return nil, fmt.Errorf("mock ocr transient failure (call %d)", count)
	}

	text, ok := m.Pages[pageNum]
	if !ok {
		text = fmt.Sprintf("mock page %d", pageNum)
	}
	return &canonical.PageText{
		PageNumber: pageNum,
		Text:       text,
		Boxes:      m.Boxes,
	}, nil
}

// MockNER is an NERProvider for testing.
type MockNER struct {
	// Configurable behavior
	Latency    time.Duration
	FailFirst  int
	ShouldFail bool
	Entities   []canonical.Entity            // Returned when no ByText match
	ByText     map[string][]canonical.Entity // Exact text -> scripted entities

	// State
	callCount atomic.Int64
}

// NewMockNER creates a mock NER provider.
func NewMockNER() *MockNER {
	return &MockNER{}
}

// Name returns the provider identifier.
func (m *MockNER) Name() string { return MockName }

// RequestsPerSecond returns an effectively unthrottled rate for tests.
func (m *MockNER) RequestsPerSecond() float64 { return 1000 }

// CallCount returns the number of RunNER calls made.
func (m *MockNER) CallCount() int { return int(m.callCount.Load()) }

// RunNER returns the scripted entities.
func (m *MockNER) RunNER(ctx context.Context, text string) ([]canonical.Entity, error) {
	count := m.callCount.Add(1)

	if text == "" {
		return nil, &AdapterError{Kind: InvalidInput, Provider: MockName,
			Err: fmt.Errorf("empty text")}
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.ShouldFail || int(count) <= m.FailFirst {
		return nil, fmt.Errorf("mock ner transient failure (call %d)", count)
	}

	src := m.Entities
	if scripted, ok := m.ByText[text]; ok {
		src = scripted
	}
	out := make([]canonical.Entity, len(src))
	copy(out, src)
	return out, nil
}

// Verify interfaces
var (
	_ OCRProvider = (*MockOCR)(nil)
	_ NERProvider = (*MockNER)(nil)
)
