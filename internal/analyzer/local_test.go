package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAnalyzeSplitsSentences(t *testing.T) {
	l := NewLocal()
	sentences, err := l.Analyze(context.Background(), "ACME Corp reported revenue. ACME Corp was founded in 1987.")
	require.NoError(t, err)
	require.Len(t, sentences, 2)
}

func TestLocalAnalyzeDetectsEntity(t *testing.T) {
	l := NewLocal()
	sentences, err := l.Analyze(context.Background(), "ACME Corp reported revenue of five billion dollars.")
	require.NoError(t, err)
	require.Len(t, sentences, 1)
	assert.Contains(t, sentences[0].NamedEntities(), "ACME Corp")
}

func TestLocalAnalyzeDetectsNegation(t *testing.T) {
	l := NewLocal()
	sentences, err := l.Analyze(context.Background(), "ACME Corp did not report any revenue.")
	require.NoError(t, err)
	require.Len(t, sentences, 1)
	assert.True(t, sentences[0].Negated())
}

func TestSentenceSubjectObjectFallback(t *testing.T) {
	s := Sentence{Tokens: []Token{
		{Text: "acme", Lemma: "acme", DepRel: "nsubj"},
		{Text: "reported", Lemma: "report"},
		{Text: "revenue", Lemma: "revenue", DepRel: "dobj"},
	}}
	subj, ok := s.Subject()
	require.True(t, ok)
	assert.Equal(t, "acme", subj)

	obj, ok := s.Object()
	require.True(t, ok)
	assert.Equal(t, "revenue", obj)
}

func TestSentenceSubjectMissingReportsNotOk(t *testing.T) {
	s := Sentence{Tokens: []Token{{Text: "revenue", Lemma: "revenue", DepRel: "dobj"}}}
	_, ok := s.Subject()
	assert.False(t, ok)
}

func TestHandleLazilyConstructsLocal(t *testing.T) {
	h := NewHandle(nil)
	a := h.Get()
	require.NotNil(t, a)
	assert.NoError(t, h.Close())
}
