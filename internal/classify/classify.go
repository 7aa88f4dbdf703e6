// Package classify applies a client's include/exclude keyword rules to
// listing text. Exclude terms always win over include terms: a listing
// mentioning both "producent" and "agencja pracy" is an agency, not a lead.
package classify

import "strings"

// RuleSet holds a client's keyword rules. Matching is case-insensitive
// substring containment.
type RuleSet struct {
	Include []string
	Exclude []string
}

// Decision is the classifier outcome plus the term that decided it, kept
// for run diagnostics.
type Decision struct {
	Accepted    bool
	MatchedTerm string
}

// Classify decides whether text passes the rule set.
//
// Any exclude match rejects, regardless of include matches. With a non-empty
// include set, at least one include term must match; an empty include set
// accepts everything not excluded.
func Classify(text string, rs RuleSet) Decision {
	lower := strings.ToLower(text)

	for _, term := range rs.Exclude {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(lower, term) {
			return Decision{Accepted: false, MatchedTerm: term}
		}
	}

	hasInclude := false
	for _, term := range rs.Include {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		hasInclude = true
		if strings.Contains(lower, term) {
			return Decision{Accepted: true, MatchedTerm: term}
		}
	}
	if !hasInclude {
		return Decision{Accepted: true}
	}
	return Decision{Accepted: false}
}
