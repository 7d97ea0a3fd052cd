package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ktanaka/medscan/internal/canonical"
)

// OCRProvider extracts text and layout from a single page image.
// Implementations translate vendor-specific response shapes into the
// canonical units: bounding boxes in absolute pixels, confidence
// normalized to [0,1]. Adapters are stateless beyond their HTTP client
// and never write to the audit log; the pipeline owns auditing.
type OCRProvider interface {
	// Name returns the provider identifier (e.g. "vision").
	Name() string

	// RunOCR extracts text from one page image. The image must be
	// non-empty; an empty image fails with an invalid-input error.
	RunOCR(ctx context.Context, image []byte, pageNum int) (*canonical.PageText, error)

	// RequestsPerSecond returns the provider rate limit.
	RequestsPerSecond() float64
}

// NERProvider recognizes entities in assembled document text.
// Vendor entity taxonomies are mapped through a fixed table into the
// canonical kinds; unmapped vendor categories map to Other.
type NERProvider interface {
	// Name returns the provider identifier (e.g. "medner").
	Name() string

	// RunNER extracts entities from text. The text must be non-empty.
	RunNER(ctx context.Context, text string) ([]canonical.Entity, error)

	// RequestsPerSecond returns the provider rate limit.
	RequestsPerSecond() float64
}

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	// InvalidInput means the adapter was handed input it cannot send
	// to the vendor (empty image, empty text). Never retried.
	InvalidInput ErrorKind = "invalid_input"

	// Unavailable means the vendor call failed after retry exhaustion.
	// The current document is aborted.
	Unavailable ErrorKind = "unavailable"

	// RateLimited means the vendor answered 429. Retryable.
	RateLimited ErrorKind = "rate_limited"
)

// AdapterError is a classified provider failure. It wraps the underlying
// vendor error when one exists.
type AdapterError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an AdapterError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == kind
}

// Retryable reports whether an adapter error should be retried by the
// pipeline. Invalid input is permanent; everything else (network errors,
// 5xx, 429) is considered transient.
func Retryable(err error) bool {
	return !IsKind(err, InvalidInput)
}

// clampConfidence forces vendor scores into [0,1].
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
