// Package fhir maps canonical documents onto a FHIR-shaped bundle.
//
// This is a shape mapping only: Condition, MedicationStatement and
// Observation resources are emitted with the minimal fields consumers of
// the structured output expect. No FHIR validation is performed.
package fhir

import (
	"fmt"

	"github.com/ktanaka/medscan/internal/canonical"
)

// Resource is one FHIR resource entry. Only the fields the extraction
// pipeline can populate are present.
type Resource struct {
	ResourceType string   `json:"resourceType"`
	ID           string   `json:"id"`
	Code         CodeText `json:"code"`
	Confidence   float64  `json:"extension_confidence,omitempty"`
	Page         int      `json:"extension_sourcePage,omitempty"`
}

// CodeText carries the extracted span as display text.
type CodeText struct {
	Text string `json:"text"`
}

// BundleEntry wraps a resource in a FHIR bundle entry.
type BundleEntry struct {
	Resource Resource `json:"resource"`
}

// Bundle is a FHIR Bundle of type "collection".
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	ID           string        `json:"id"`
	Entries      []BundleEntry `json:"entry"`
}

// resourceTypes maps canonical entity kinds to FHIR resource types.
// Kinds without a mapping (Other) are omitted from FHIR output; they are
// still retained in the canonical JSON artifact.
var resourceTypes = map[canonical.EntityKind]string{
	canonical.KindDiagnosis:  "Condition",
	canonical.KindMedication: "MedicationStatement",
	canonical.KindTest:       "Observation",
}

// FromDocument builds a FHIR bundle from a finalized canonical document.
// Entity ordering is preserved, so output is deterministic.
func FromDocument(doc *canonical.Document) *Bundle {
	b := &Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		ID:           doc.DocumentID,
		Entries:      []BundleEntry{},
	}

	n := 0
	for _, e := range doc.Entities {
		rt, ok := resourceTypes[e.Kind]
		if !ok {
			continue
		}
		n++
		b.Entries = append(b.Entries, BundleEntry{
			Resource: Resource{
				ResourceType: rt,
				ID:           fmt.Sprintf("%s-%d", doc.DocumentID, n),
				Code:         CodeText{Text: e.Value},
				Confidence:   e.Confidence,
				Page:         e.SourcePage,
			},
		})
	}
	return b
}
