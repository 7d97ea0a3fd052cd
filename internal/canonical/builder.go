package canonical

import (
	"fmt"
	"sort"
	"time"
)

// ValidationKind identifies the class of a validation failure.
type ValidationKind string

const (
	// DuplicatePage means AddPage saw a page number already present.
	DuplicatePage ValidationKind = "duplicate_page"

	// DanglingEntity means an entity references a page number that is
	// not present in the document.
	DanglingEntity ValidationKind = "dangling_entity"
)

// ValidationError rejects a document that violates the canonical model.
// Validation failures are always fatal to the document.
type ValidationError struct {
	Kind   ValidationKind
	Page   int    // offending page number
	Entity string // offending entity value, for DanglingEntity
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case DuplicatePage:
		return fmt.Sprintf("duplicate page %d", e.Page)
	case DanglingEntity:
		return fmt.Sprintf("entity %q references missing page %d", e.Entity, e.Page)
	default:
		return fmt.Sprintf("validation failed: %s", e.Kind)
	}
}

// Builder accumulates OCR pages and NER entities for one document.
// A builder is exclusively owned by one in-flight document and is not
// safe for concurrent use; concurrency is achieved by running one
// builder per document.
type Builder struct {
	doc       Document
	seenPages map[int]bool
	now       func() time.Time
}

// NewBuilder begins an empty document with the given stable ID.
func NewBuilder(documentID string) *Builder {
	return &Builder{
		doc:       Document{DocumentID: documentID},
		seenPages: make(map[int]bool),
		now:       time.Now,
	}
}

// AddPage appends one page of OCR output. Adding a page number that is
// already present fails with DuplicatePage.
func (b *Builder) AddPage(page PageText) error {
	if b.seenPages[page.PageNumber] {
		return &ValidationError{Kind: DuplicatePage, Page: page.PageNumber}
	}
	b.seenPages[page.PageNumber] = true
	b.doc.Pages = append(b.doc.Pages, page)
	return nil
}

// AddEntities appends recognized entities. Page references are not
// checked here; Finalize enforces them once all pages are known.
func (b *Builder) AddEntities(entities []Entity) {
	b.doc.Entities = append(b.doc.Entities, entities...)
}

// PageCount returns the number of pages added so far.
func (b *Builder) PageCount() int {
	return len(b.doc.Pages)
}

// AssembledText concatenates page texts in page order, for NER input.
func (b *Builder) AssembledText() string {
	pages := make([]PageText, len(b.doc.Pages))
	copy(pages, b.doc.Pages)
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
	var text string
	for i, p := range pages {
		if i > 0 {
			text += "\n"
		}
		text += p.Text
	}
	return text
}

// Finalize validates the accumulated document and returns it with
// deterministic ordering applied: pages ascending by page number,
// entities by (source_page, kind, value). Any entity referencing an
// absent page fails with DanglingEntity and no document is returned.
func (b *Builder) Finalize() (*Document, error) {
	for _, e := range b.doc.Entities {
		if !b.seenPages[e.SourcePage] {
			return nil, &ValidationError{
				Kind:   DanglingEntity,
				Page:   e.SourcePage,
				Entity: e.Value,
			}
		}
	}

	doc := b.doc
	doc.Pages = make([]PageText, len(b.doc.Pages))
	copy(doc.Pages, b.doc.Pages)
	sort.Slice(doc.Pages, func(i, j int) bool {
		return doc.Pages[i].PageNumber < doc.Pages[j].PageNumber
	})

	doc.Entities = make([]Entity, len(b.doc.Entities))
	copy(doc.Entities, b.doc.Entities)
	sort.Slice(doc.Entities, func(i, j int) bool {
		a, z := doc.Entities[i], doc.Entities[j]
		if a.SourcePage != z.SourcePage {
			return a.SourcePage < z.SourcePage
		}
		if kindOrder[a.Kind] != kindOrder[z.Kind] {
			return kindOrder[a.Kind] < kindOrder[z.Kind]
		}
		return a.Value < z.Value
	})

	doc.CreatedAt = b.now().UTC()
	return &doc, nil
}
