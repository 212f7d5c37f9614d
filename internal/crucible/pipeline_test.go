package crucible

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-network/axiomd/internal/analyzer"
	"github.com/axiom-network/axiomd/internal/hasher"
	"github.com/axiom-network/axiomd/internal/store"
)

func newTestProcessor(t *testing.T) (*Processor, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := New(st, analyzer.NewHandle(analyzer.NewLocal()), zerolog.Nop())
	return p, st
}

func TestProcessAcceptsNewFact(t *testing.T) {
	p, _ := newTestProcessor(t)
	facts, err := p.Process(context.Background(),
		"ACME Corporation reported quarterly revenue of five billion dollars today.",
		"https://example.com/a")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 0, facts[0].Score)
}

func TestProcessIdempotentOnRepeatedInput(t *testing.T) {
	p, _ := newTestProcessor(t)
	text := "ACME Corporation reported quarterly revenue of five billion dollars today."

	first, err := p.Process(context.Background(), text, "https://example.com/a")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := p.Process(context.Background(), text, "https://example.com/a")
	require.NoError(t, err)
	assert.Empty(t, second, "repeated ingestion from the same source must not create a new fact")
}

func TestProcessCorroboratesFromDifferentDomain(t *testing.T) {
	p, st := newTestProcessor(t)
	text := "ACME Corporation reported quarterly revenue of five billion dollars today."

	_, err := p.Process(context.Background(), text, "https://example.com/a")
	require.NoError(t, err)

	second, err := p.Process(context.Background(), text, "https://other.com/b")
	require.NoError(t, err)
	assert.Empty(t, second, "corroboration must not emit a new fact for block inclusion")

	got, err := store.FactByHash(context.Background(), st.DB(), hashOf(t, p, text))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
	assert.ElementsMatch(t, []string{"example.com", "other.com"}, got.Sources)
}

func TestProcessCorroboratesOnPrefixMatchDespiteDifferentObject(t *testing.T) {
	p, st := newTestProcessor(t)
	first := "ACME Corporation did not report complete quarterly figures covering alpha."
	second := "ACME Corporation did not report complete quarterly figures covering beta."

	firstFacts, err := p.Process(context.Background(), first, "example.com")
	require.NoError(t, err)
	require.Len(t, firstFacts, 1)

	secondFacts, err := p.Process(context.Background(), second, "other.com")
	require.NoError(t, err)
	assert.Empty(t, secondFacts, "a same-prefix restatement from a different domain must corroborate even though its derived object differs from the original")

	got, err := store.FactByHash(context.Background(), st.DB(), hashOf(t, p, first))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
	assert.ElementsMatch(t, []string{"example.com", "other.com"}, got.Sources)
}

func TestProcessSkipsTooShortSentence(t *testing.T) {
	p, _ := newTestProcessor(t)
	facts, err := p.Process(context.Background(), "ACME Corp won.", "https://example.com/a")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestProcessSkipsSubjectiveSentence(t *testing.T) {
	p, _ := newTestProcessor(t)
	facts, err := p.Process(context.Background(),
		"ACME Corporation allegedly reported quarterly revenue of five billion dollars today.",
		"https://example.com/a")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestIsContradictionMatchesSpecTruthTable(t *testing.T) {
	assert.True(t, isContradiction(false, false))
	assert.True(t, isContradiction(true, false))
	assert.True(t, isContradiction(false, true))
	assert.False(t, isContradiction(true, true))
}

func TestSanitizeLowercasesAndCollapsesWhitespace(t *testing.T) {
	got := Sanitize("ACME   Corp   reported  Revenue.")
	assert.Equal(t, "acme corp reported revenue.", got)
}

// hashOf re-derives the sanitized/hashed fact identity to look it up in the
// store without threading IDs through Process's return value.
func hashOf(t *testing.T, p *Processor, text string) string {
	t.Helper()
	sentences, err := p.analyzer.Get().Analyze(context.Background(), Sanitize(text))
	require.NoError(t, err)
	require.NotEmpty(t, sentences)
	digest := hasher.Sum256([]byte(sentences[0].Text))
	return hex.EncodeToString(digest[:])
}
