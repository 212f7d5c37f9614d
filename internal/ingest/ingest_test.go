package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-network/axiomd/internal/acquire"
	"github.com/axiom-network/axiomd/internal/analyzer"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/crucible"
	"github.com/axiom-network/axiomd/internal/store"
)

// fakeSource serves one fixed batch of items on its first Fetch call and
// nothing thereafter, standing in for an RSS/HTTP acquirer that has
// already advanced its own high-water mark.
type fakeSource struct {
	items  []acquire.Item
	served bool
}

func (s *fakeSource) Fetch(ctx context.Context) ([]acquire.Item, error) {
	if s.served {
		return nil, nil
	}
	s.served = true
	return s.items, nil
}

func newTestLoop(t *testing.T, sources []acquire.ContentSource, trigger SyncTrigger) (*Loop, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	handle := analyzer.NewHandle(analyzer.NewLocal())
	t.Cleanup(func() { handle.Close() })
	proc := crucible.New(st, handle, zerolog.Nop())

	l := New(st, proc, sources, blockengine.GenesisDifficulty, time.Hour, trigger, nil, zerolog.Nop())
	return l, st
}

func TestRunOnceSealsBlockWhenFactsAccepted(t *testing.T) {
	src := &fakeSource{items: []acquire.Item{
		{Domain: "example.com", Text: "ACME Corp announced a merger with Globex Inc."},
	}}

	triggered := false
	l, st := newTestLoop(t, []acquire.ContentSource{src}, func(ctx context.Context) { triggered = true })

	l.RunOnce(context.Background())

	height, err := store.ChainHeight(context.Background(), st.DB())
	require.NoError(t, err)
	assert.Equal(t, int64(0), height, "first sealed batch becomes the genesis-height block")
	assert.True(t, triggered, "sync trigger should fire after a successful seal")
}

func TestRunOnceSkipsSealWhenNothingAccepted(t *testing.T) {
	src := &fakeSource{items: []acquire.Item{
		{Domain: "example.com", Text: "   "},
	}}

	triggered := false
	l, st := newTestLoop(t, []acquire.ContentSource{src}, func(ctx context.Context) { triggered = true })

	l.RunOnce(context.Background())

	height, err := store.ChainHeight(context.Background(), st.DB())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)
	assert.False(t, triggered, "sync trigger must not fire when no block was sealed")
}

func TestRunOnceToleratesSourceFetchError(t *testing.T) {
	l, st := newTestLoop(t, []acquire.ContentSource{failingSource{}}, nil)
	l.RunOnce(context.Background())

	height, err := store.ChainHeight(context.Background(), st.DB())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)
}

type failingSource struct{}

func (failingSource) Fetch(ctx context.Context) ([]acquire.Item, error) {
	return nil, assertErr
}

var assertErr = fetchError("boom")

type fetchError string

func (e fetchError) Error() string { return string(e) }

func TestStartStopRunsAtLeastOneCycle(t *testing.T) {
	src := &fakeSource{items: []acquire.Item{
		{Domain: "example.com", Text: "Widgets Inc Corp posted record setting revenue this quarter."},
	}}
	l, st := newTestLoop(t, []acquire.ContentSource{src}, nil)
	l.interval = 5 * time.Millisecond

	l.Start()
	require.Eventually(t, func() bool {
		height, err := store.ChainHeight(context.Background(), st.DB())
		return err == nil && height == 0
	}, time.Second, 5*time.Millisecond)
	l.Stop()
}
