package crucible

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/analyzer"
	"github.com/axiom-network/axiomd/internal/ledger"
	"github.com/axiom-network/axiomd/internal/store"
)

// corroborationPrefixLen is the first-N-character content-equality test
// used to detect corroboration (spec section 4.2 step 3, and spec section
// 9's open-question note to preserve prefix equality over a semantic
// similarity threshold unless the policy is explicitly changed).
const corroborationPrefixLen = 50

// Processor runs the extraction pipeline against one node's store,
// consuming an injected analyzer handle rather than a package-level global
// (spec section 9, "Process-wide analyzer handle").
type Processor struct {
	store    *store.Store
	analyzer *analyzer.Handle
	log      zerolog.Logger
}

func New(st *store.Store, ah *analyzer.Handle, log zerolog.Logger) *Processor {
	return &Processor{store: st, analyzer: ah, log: log.With().Str("component", "crucible").Logger()}
}

// Process sanitizes text, asks the analyzer for sentences, and runs each
// through the extraction pipeline, returning the facts newly persisted
// into this batch (ready for block inclusion). Facts merged as
// corroborations of an existing fact are not included: they already
// belong to a prior block (spec section 4.2).
func (p *Processor) Process(ctx context.Context, rawText, sourceDomain string) ([]*ledger.Fact, error) {
	domain, err := ledger.NormalizeDomain(sourceDomain)
	if err != nil {
		return nil, err
	}

	sanitized := Sanitize(rawText)
	if sanitized == "" {
		return nil, nil
	}

	sentences, err := p.analyzer.Get().Analyze(ctx, sanitized)
	if err != nil {
		return nil, fmt.Errorf("analyze text from %s: %w", domain, err)
	}

	var accepted []*ledger.Fact
	err = p.store.WithTx(func(tx *sql.Tx) error {
		src, err := store.GetOrCreateSource(ctx, tx, domain)
		if err != nil {
			return err
		}
		for _, sentence := range sentences {
			fact := p.processSentenceSafely(ctx, tx, src.ID, domain, sentence)
			if fact != nil {
				accepted = append(accepted, fact)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// processSentenceSafely runs processSentence and recovers from a panic
// rather than letting one malformed sentence fail the whole ingestion
// batch (spec section 5 edge case: "external analyzer failure ... skip
// the offending sentence").
func (p *Processor) processSentenceSafely(ctx context.Context, tx *sql.Tx, sourceID int64, domain string, sentence analyzer.Sentence) (result *ledger.Fact) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Interface("panic", r).Str("sentence", sentence.Text).Msg("skipping sentence after analyzer failure")
			result = nil
		}
	}()
	fact, err := p.processSentence(ctx, tx, sourceID, domain, sentence)
	if err != nil {
		p.log.Warn().Err(err).Str("sentence", sentence.Text).Msg("skipping sentence")
		return nil
	}
	return fact
}

func (p *Processor) processSentence(ctx context.Context, tx *sql.Tx, sourceID int64, domain string, sentence analyzer.Sentence) (*ledger.Fact, error) {
	entities := sentence.NamedEntities()
	if !acceptable(len(sentence.Tokens), len(entities), sentence.Text) {
		return nil, nil
	}
	subject, ok := sentence.Subject()
	if !ok {
		return nil, nil
	}
	object, ok := sentence.Object()
	if !ok {
		return nil, nil
	}
	negated := sentence.Negated()

	content := strings.TrimSpace(sentence.Text)
	fact, err := ledger.NewFact(content, ledger.Semantics{
		Subject: subject, Object: object, Negated: negated, Entities: entities,
	})
	if err != nil {
		return nil, nil
	}

	// Step 1: dedupe by hash. If this exact content was already accepted,
	// treat it as a corroboration of the existing record.
	existing, err := store.FactByHash(ctx, tx, fact.HashHex())
	switch {
	case err == nil:
		return nil, p.corroborateExisting(ctx, tx, existing, sourceID, domain)
	case errors.Is(err, sql.ErrNoRows):
		// fall through to contradiction/corroboration/accept
	default:
		return nil, err
	}

	// Step 2: contradiction check.
	sameSubject, err := store.FactsBySubject(ctx, tx, subject)
	if err != nil {
		return nil, err
	}
	for _, other := range sameSubject {
		if other.Semantics.Object == object {
			continue
		}
		if isContradiction(negated, other.Semantics.Negated) {
			return p.recordContradiction(ctx, tx, fact, other, sourceID)
		}
	}

	// Step 3: corroboration check. Unlike step 2, this has no subject/object
	// restriction: any existing fact with a matching content prefix from a
	// different source domain corroborates, regardless of its derived
	// semantics.
	candidates, err := store.AllFacts(ctx, tx)
	if err != nil {
		return nil, err
	}
	prefix := prefixRunes(content, corroborationPrefixLen)
	for _, other := range candidates {
		if prefixRunes(other.Content, corroborationPrefixLen) != prefix {
			continue
		}
		if !hasDifferentDomain(other.Sources, domain) {
			continue
		}
		return nil, p.corroborateExisting(ctx, tx, other, sourceID, domain)
	}

	// Step 4: accept as a new fact.
	if err := store.InsertFact(ctx, tx, fact, []int64{sourceID}); err != nil {
		return nil, err
	}

	// Step 5: relationship detection against the rest of the corpus.
	if err := p.linkSharedEntities(ctx, tx, fact, entities); err != nil {
		return nil, err
	}
	return fact, nil
}

// isContradiction implements spec section 4.2 step 2's condition for two
// facts sharing a subject but disagreeing on object: n != n', or both are
// un-negated (two different un-negated claims about the same subject
// cannot both be the single truth).
func isContradiction(n, np bool) bool {
	if n != np {
		return true
	}
	return !n && !np
}

// recordContradiction persists fact, marks both it and other disputed, and
// inserts the contradiction FactLink. Processing of fact stops here per
// spec section 4.2 step 2.
func (p *Processor) recordContradiction(ctx context.Context, tx *sql.Tx, fact *ledger.Fact, other *ledger.Fact, sourceID int64) (*ledger.Fact, error) {
	fact.Disputed = true
	fact.DisputedReason = fmt.Sprintf("contradicts fact %d", other.ID)
	if err := store.InsertFact(ctx, tx, fact, []int64{sourceID}); err != nil {
		return nil, err
	}
	if err := store.UpdateFactVerdict(ctx, tx, other.ID, other.Status, other.Score, true,
		fmt.Sprintf("contradicts fact %d", fact.ID)); err != nil {
		return nil, err
	}
	link, err := ledger.NewFactLink(fact.ID, other.ID, ledger.ContradictionScore)
	if err != nil {
		return nil, err
	}
	if err := store.InsertFactLink(ctx, tx, link); err != nil {
		return nil, err
	}
	return fact, nil
}

// corroborateExisting adds domain as a new source of existing, if it is
// not already recorded, and bumps its score accordingly. It never creates
// a new Fact row (spec section 4.2 step 3: "drop F").
func (p *Processor) corroborateExisting(ctx context.Context, tx *sql.Tx, existing *ledger.Fact, sourceID int64, domain string) error {
	if hasDomain(existing.Sources, domain) {
		return nil
	}
	if err := store.LinkFactSource(ctx, tx, existing.ID, sourceID); err != nil {
		return err
	}
	newScore := existing.Score + 1
	status := existing.Status
	if status == ledger.StatusIngested {
		status = ledger.StatusCorroborated
	}
	return store.UpdateFactVerdict(ctx, tx, existing.ID, status, newScore, existing.Disputed, existing.DisputedReason)
}

// linkSharedEntities implements relationship detection: every existing
// fact sharing at least one named entity with fact gets a positive-score
// FactLink recording the overlap size (spec section 4.2 step 5).
func (p *Processor) linkSharedEntities(ctx context.Context, tx *sql.Tx, fact *ledger.Fact, entities []string) error {
	all, err := store.AllFactEntities(ctx, tx, fact.ID)
	if err != nil {
		return err
	}
	set := toSet(entities)
	for _, other := range all {
		w := sharedCount(set, other.Entities)
		if w <= 0 {
			continue
		}
		link, err := ledger.NewFactLink(fact.ID, other.FactID, w)
		if err != nil {
			return err
		}
		if err := store.InsertFactLink(ctx, tx, link); err != nil {
			return err
		}
	}
	return nil
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func hasDomain(sources []string, domain string) bool {
	for _, s := range sources {
		if s == domain {
			return true
		}
	}
	return false
}

func hasDifferentDomain(sources []string, domain string) bool {
	for _, s := range sources {
		if s != domain {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func sharedCount(set map[string]bool, items []string) int {
	n := 0
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		if set[it] {
			n++
		}
	}
	return n
}
