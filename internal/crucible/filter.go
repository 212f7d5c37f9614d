package crucible

import "strings"

// subjectivityIndicators is the fixed set of terms that disqualify a
// sentence as too subjective to admit as a candidate fact (spec section
// 4.2). Carried over verbatim from the source corpus's indicator list.
var subjectivityIndicators = []string{
	"believe", "think", "feel", "seems", "appears", "argues", "suggests",
	"contends", "opines", "speculates", "especially", "notably", "remarkably",
	"surprisingly", "unfortunately", "clearly", "obviously", "reportedly",
	"allegedly", "routinely", "likely", "apparently", "essentially", "largely",
	"wedded to", "new heights", "war on facts", "playbook", "art of",
	"therefore", "consequently", "thus", "hence", "conclusion", "untrue",
	"false", "incorrect", "correctly", "rightly", "wrongly", "inappropriate",
	"disparage", "sycophants", "unwelcome", "flatly",
}

const (
	minSentenceTokens = 8
	maxSentenceTokens = 100
)

// isObjective reports whether text contains none of the subjectivity
// indicator terms, case-insensitively.
func isObjective(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range subjectivityIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	return true
}

// acceptable reports whether a sentence qualifies as a candidate fact:
// token count in [8, 100], at least one named entity, and no subjectivity
// indicator present (spec section 4.2).
func acceptable(tokenCount int, entityCount int, text string) bool {
	if tokenCount < minSentenceTokens || tokenCount > maxSentenceTokens {
		return false
	}
	if entityCount < 1 {
		return false
	}
	return isObjective(text)
}
