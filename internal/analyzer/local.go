package analyzer

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

// sentenceSplit is a deliberately simple splitter: it cuts after every
// '.', '!' or '?', including one inside a number or abbreviation, and keeps
// the terminator with the sentence it ends. A real NLP backend would
// replace this with proper sentence segmentation.
var sentenceSplit = regexp.MustCompile(`[^.!?]+[.!?]?`)

// capitalizedRun matches a run of one or more capitalized words, the local
// stand-in for named-entity recognition: "ACME Corp", "United Nations".
var capitalizedRun = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*)\b`)

// negationWords flags a token as carrying a negation dependency relation.
var negationWords = map[string]bool{
	"not": true, "never": true, "no": true, "n't": true,
}

// corporateSuffixes anchors the lowercase fallback entity heuristic: the
// Crucible pipeline always sanitizes (and so lowercases) text before it
// reaches Analyze, so capitalizedRun never matches in practice. A word
// immediately preceded by one of these, plus the suffix itself, stands in
// for an organization name.
var corporateSuffixes = map[string]bool{
	"corp": true, "corporation": true, "inc": true, "ltd": true,
	"llc": true, "co": true, "group": true, "plc": true,
}

// Local is a dependency-free stand-in for a real sentence analyzer: it
// splits text into sentences, tokenizes on whitespace, and approximates
// subject/object/entity detection with fixed heuristics (capitalized word
// runs, or a word followed by a corporate suffix, = entity; first word =
// subject, last word = object).
// It exists so Crucible can run, and be tested, without a networked NLP
// service (spec section 2).
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Close() error { return nil }

func (l *Local) Analyze(ctx context.Context, text string) ([]Sentence, error) {
	var sentences []Sentence
	for _, raw := range sentenceSplit.FindAllString(text, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		sentences = append(sentences, l.analyzeSentence(raw))
	}
	return sentences, nil
}

func (l *Local) analyzeSentence(raw string) Sentence {
	entities := findEntities(raw)
	words := strings.Fields(strings.Trim(raw, ".!?"))

	tokens := make([]Token, 0, len(words))
	negated := false
	for _, w := range strings.Fields(raw) {
		clean := strings.ToLower(strings.Trim(w, ".,!?;:"))
		if negationWords[clean] {
			negated = true
		}
	}

	subjectAssigned, objectAssigned := false, false
	for i, w := range words {
		clean := strings.Trim(w, ".,!?;:")
		lemma := lemmatize(clean)
		tok := Token{Text: clean, Lemma: lemma, POS: "X"}

		if entityText, ok := tokenEntity(clean, entities); ok {
			tok.IsEntity = true
			tok.EntityText = entityText
		}
		if negated && negationWords[strings.ToLower(clean)] {
			tok.DepRel = "neg"
		} else if !subjectAssigned && i == 0 {
			tok.DepRel = "nsubj"
			subjectAssigned = true
		} else if !objectAssigned && i == len(words)-1 {
			tok.DepRel = "dobj"
			objectAssigned = true
		}
		tokens = append(tokens, tok)
	}
	return Sentence{Text: raw, Tokens: tokens}
}

func findEntities(sentence string) []string {
	if matches := capitalizedRun.FindAllString(sentence, -1); len(matches) > 0 {
		seen := make(map[string]bool)
		var out []string
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
		return out
	}
	return findSuffixEntities(sentence)
}

// findSuffixEntities is the fallback used once sanitize has already
// lowercased the text: it walks back from each corporate-suffix word to
// the start of its name phrase.
func findSuffixEntities(sentence string) []string {
	words := strings.Fields(strings.Trim(sentence, ".!?"))
	seen := make(map[string]bool)
	var out []string
	for i, w := range words {
		clean := strings.ToLower(strings.Trim(w, ".,!?;:"))
		if !corporateSuffixes[clean] {
			continue
		}
		j := i - 1
		for j >= 0 && corporateSuffixes[strings.ToLower(strings.Trim(words[j], ".,!?;:"))] {
			j--
		}
		if j < 0 {
			continue
		}
		phrase := strings.ToLower(strings.Join(words[j:i+1], " "))
		if seen[phrase] {
			continue
		}
		seen[phrase] = true
		out = append(out, phrase)
	}
	return out
}

func tokenEntity(token string, entities []string) (string, bool) {
	for _, e := range entities {
		if strings.Contains(e, token) {
			return e, true
		}
	}
	return "", false
}

// lemmatize strips the most common English inflectional suffixes. It is a
// heuristic, not a real lemmatizer; Crucible only needs lemma equality to
// be stable across repeated runs on the same input, which this satisfies.
func lemmatize(token string) string {
	lower := strings.ToLower(token)
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 4:
		return lower[:len(lower)-3] + "y"
	case strings.HasSuffix(lower, "es") && len(lower) > 3:
		return lower[:len(lower)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 3:
		return lower[:len(lower)-1]
	default:
		return lower
	}
}

// Handle is the process-wide, lazily-initialized analyzer instance Crucible
// is injected with (spec section 9). It is constructed explicitly at
// startup and torn down at shutdown; nothing in this package reaches for a
// package-level default on its own.
type Handle struct {
	mu   sync.Mutex
	impl Analyzer
}

// NewHandle wraps impl in a Handle. Passing nil defers construction to the
// first call to Get, which builds a Local analyzer.
func NewHandle(impl Analyzer) *Handle {
	return &Handle{impl: impl}
}

// Get returns the wrapped analyzer, lazily constructing a Local if none was
// supplied at NewHandle time.
func (h *Handle) Get() Analyzer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.impl == nil {
		h.impl = NewLocal()
	}
	return h.impl
}

// Close tears down the wrapped analyzer, if one was constructed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.impl == nil {
		return nil
	}
	return h.impl.Close()
}
