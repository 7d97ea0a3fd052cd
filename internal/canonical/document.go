// Package canonical defines the vendor-neutral representation of one
// processed input document and the builder that assembles it.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EntityKind classifies a recognized entity.
type EntityKind string

const (
	KindDiagnosis  EntityKind = "diagnosis"
	KindMedication EntityKind = "medication"
	KindTest       EntityKind = "test"
	KindOther      EntityKind = "other"
)

// kindOrder fixes the sort position of each kind for deterministic output.
var kindOrder = map[EntityKind]int{
	KindDiagnosis:  0,
	KindMedication: 1,
	KindTest:       2,
	KindOther:      3,
}

// BoundingBox locates a text fragment on a page in absolute pixels.
type BoundingBox struct {
	Fragment string  `json:"fragment"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// PageText is the OCR result for a single page. It is immutable once
// returned by an adapter; the builder owns it until the document is merged.
type PageText struct {
	PageNumber int           `json:"page_number"`
	Text       string        `json:"text"`
	Boxes      []BoundingBox `json:"bounding_boxes,omitempty"`
}

// Entity is a single recognized span, attached to one page by number.
// Confidence is normalized to [0,1] by the producing adapter.
type Entity struct {
	Kind       EntityKind `json:"kind"`
	Value      string     `json:"value"`
	SourcePage int        `json:"source_page"`
	Confidence float64    `json:"confidence"`
}

// Document is the canonical record for one processed input file.
// Pages are ordered ascending by page number (gaps are preserved) and
// entities by (source_page, kind, value). Instances returned by
// Builder.Finalize must not be mutated.
type Document struct {
	DocumentID string     `json:"document_id"`
	Pages      []PageText `json:"pages"`
	Entities   []Entity   `json:"entities"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Page returns the page with the given number, or nil.
func (d *Document) Page(num int) *PageText {
	for i := range d.Pages {
		if d.Pages[i].PageNumber == num {
			return &d.Pages[i]
		}
	}
	return nil
}

// DocumentID derives a stable identifier from the raw input bytes.
// Identical input always yields the same ID, so re-runs are idempotent
// and overwrite their own artifacts.
func DocumentID(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])[:16]
}
