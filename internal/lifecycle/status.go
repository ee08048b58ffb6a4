// Package lifecycle derives a document's processing status from its
// bibliographic completeness, content presence and pipeline history.
//
// The derivation is an ordered rule table evaluated first-match-wins. The
// rules partition the input space: for any Facts exactly one rule matches,
// which Matching exposes so the property can be checked directly.
package lifecycle

import "strings"

type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusMetadataOnly      Status = "metadata_only"
	StatusSummarized        Status = "summarized"
	StatusComplete          Status = "complete"
	StatusProcessingPending Status = "processing_pending"
)

// Statuses lists every status in rule priority order.
var Statuses = []Status{
	StatusIncomplete,
	StatusMetadataOnly,
	StatusSummarized,
	StatusComplete,
	StatusProcessingPending,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Facts is everything classification looks at. HasContent and FullyProcessed
// come from the filesystem and the processing ledger; the rest from the
// canonical record.
type Facts struct {
	Title          string
	Journal        string
	Year           string
	Authors        []string
	AISummary      string
	HasContent     bool
	FullyProcessed bool
}

// BibliographyComplete reports whether title, journal, year and at least one
// non-blank author are present.
func (f Facts) BibliographyComplete() bool {
	if blank(f.Title) || blank(f.Journal) || blank(f.Year) {
		return false
	}
	for _, a := range f.Authors {
		if !blank(a) {
			return true
		}
	}
	return false
}

func (f Facts) hasSummary() bool {
	return !blank(f.AISummary)
}

// Classification is the lifecycle output written back to the canonical store.
type Classification struct {
	Status             Status `json:"status"`
	MetadataIncomplete bool   `json:"metadata_incomplete"`
	CrossrefVerified   bool   `json:"crossref_verified"`
	NeedsProcessing    bool   `json:"needs_processing"`
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
