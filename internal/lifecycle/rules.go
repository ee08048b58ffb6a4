package lifecycle

import "fmt"

// Rule is one row of the classification table.
type Rule struct {
	Status Status
	Match  func(Facts) bool
	Output Classification
}

// Rules is evaluated in order; the first matching row decides.
var Rules = []Rule{
	{
		Status: StatusIncomplete,
		Match:  func(f Facts) bool { return !f.BibliographyComplete() },
		Output: Classification{Status: StatusIncomplete, MetadataIncomplete: true},
	},
	{
		Status: StatusMetadataOnly,
		Match:  func(f Facts) bool { return f.BibliographyComplete() && !f.HasContent },
		Output: Classification{Status: StatusMetadataOnly, CrossrefVerified: true},
	},
	{
		Status: StatusSummarized,
		Match: func(f Facts) bool {
			return f.BibliographyComplete() && f.HasContent && f.FullyProcessed && f.hasSummary()
		},
		Output: Classification{Status: StatusSummarized, CrossrefVerified: true},
	},
	{
		Status: StatusComplete,
		Match: func(f Facts) bool {
			return f.BibliographyComplete() && f.HasContent && f.FullyProcessed && !f.hasSummary()
		},
		Output: Classification{Status: StatusComplete, CrossrefVerified: true},
	},
	{
		Status: StatusProcessingPending,
		Match:  func(f Facts) bool { return f.BibliographyComplete() && f.HasContent && !f.FullyProcessed },
		Output: Classification{Status: StatusProcessingPending, CrossrefVerified: true, NeedsProcessing: true},
	},
}

// Classify returns the output of the first matching rule.
func Classify(f Facts) Classification {
	for _, r := range Rules {
		if r.Match(f) {
			return r.Output
		}
	}
	// Unreachable while Rules covers the input space.
	panic(fmt.Sprintf("lifecycle: no rule matched %+v", f))
}

// Matching returns every rule status whose predicate holds for f.
func Matching(f Facts) []Status {
	var out []Status
	for _, r := range Rules {
		if r.Match(f) {
			out = append(out, r.Status)
		}
	}
	return out
}
