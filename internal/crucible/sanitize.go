// Package crucible implements the fact extraction pipeline: sanitize raw
// text, filter candidate sentences, derive semantics, and check each
// candidate against the existing ledger for contradiction and
// corroboration before accepting it as a new Fact (spec section 4.2).
//
// Grounded on original_source/src/axiom_server/crucible.py and
// enhanced_fact_processor.py for exact thresholds and step ordering,
// restructured as a service type in the style of
// BigBossBooling-Empower1-Re-Start's internal/consensus validation
// service.
package crucible

import (
	"regexp"
	"strings"
)

// yearLetterBoundary matches a run of four digits immediately followed by
// an uppercase letter, the boundary sanitize inserts a period at so the
// sentence analyzer does not fuse two sentences like "...in 2024ACME...".
var yearLetterBoundary = regexp.MustCompile(`(\d{4})([A-Z])`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize separates a 4-digit run glued to an uppercase letter with a
// period, lowercases text, collapses whitespace, and trims. The separation
// runs before lowercasing, since afterwards no uppercase letter is left to
// match. This runs before the text is handed to the sentence analyzer
// (spec section 4.2).
func Sanitize(text string) string {
	separated := yearLetterBoundary.ReplaceAllString(text, "$1. $2")
	lower := strings.ToLower(separated)
	collapsed := whitespaceRun.ReplaceAllString(lower, " ")
	return strings.TrimSpace(collapsed)
}
