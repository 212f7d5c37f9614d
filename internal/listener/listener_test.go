package listener

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/ledger"
	"github.com/axiom-network/axiomd/internal/store"
	"github.com/axiom-network/axiomd/internal/verifyapi"
)

// sealedStore builds genesis + one block carrying one fact, mirroring
// internal/verifyapi's own seededStore fixture except that block 1 is
// sealed to DefaultDifficulty, the difficulty these listeners check
// non-genesis headers against.
func sealedStore(t *testing.T) (*store.Store, *ledger.Fact) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	genesis, err := blockengine.Genesis()
	require.NoError(t, err)

	fact, err := ledger.NewFact("Initech Corp confirmed a new product line.",
		ledger.Semantics{Subject: "initech", Object: "product line", Entities: []string{"Initech Corp"}})
	require.NoError(t, err)
	fact.Sources = []string{"example.com"}

	block := blockengine.BuildNext(genesis, []string{fact.HashHex()})
	require.NoError(t, blockengine.Seal(block, blockengine.DefaultDifficulty))

	err = st.WithTx(func(tx *sql.Tx) error {
		if err := store.InsertBlock(context.Background(), tx, genesis); err != nil {
			return err
		}
		src, err := store.GetOrCreateSource(context.Background(), tx, "example.com")
		if err != nil {
			return err
		}
		if err := store.InsertFact(context.Background(), tx, fact, []int64{src.ID}); err != nil {
			return err
		}
		return store.InsertBlock(context.Background(), tx, block)
	})
	require.NoError(t, err)

	return st, fact
}

func TestSyncHeadersAdoptsValidatedChain(t *testing.T) {
	st, _ := sealedStore(t)
	srv := httptest.NewServer(verifyapi.New(st, zerolog.Nop()).Router())
	defer srv.Close()

	l := New(srv.URL, blockengine.DefaultDifficulty, zerolog.Nop())
	require.NoError(t, l.SyncHeaders(context.Background()))
	assert.Equal(t, int64(1), l.Height())

	// A second pass against an unchanged remote is a no-op.
	require.NoError(t, l.SyncHeaders(context.Background()))
	assert.Equal(t, int64(1), l.Height())
}

func TestVerifyFactInclusionSucceedsForKnownFact(t *testing.T) {
	st, fact := sealedStore(t)
	srv := httptest.NewServer(verifyapi.New(st, zerolog.Nop()).Router())
	defer srv.Close()

	l := New(srv.URL, blockengine.DefaultDifficulty, zerolog.Nop())
	require.NoError(t, l.SyncHeaders(context.Background()))

	ok, err := l.VerifyFactInclusion(context.Background(), fact.HashHex(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyFactInclusionFailsForUnknownFact(t *testing.T) {
	st, _ := sealedStore(t)
	srv := httptest.NewServer(verifyapi.New(st, zerolog.Nop()).Router())
	defer srv.Close()

	l := New(srv.URL, blockengine.DefaultDifficulty, zerolog.Nop())
	require.NoError(t, l.SyncHeaders(context.Background()))

	_, err := l.VerifyFactInclusion(context.Background(), "deadbeef", 1)
	assert.Error(t, err)
}

func TestVerifyFactInclusionRejectsUnsyncedHeight(t *testing.T) {
	st, fact := sealedStore(t)
	srv := httptest.NewServer(verifyapi.New(st, zerolog.Nop()).Router())
	defer srv.Close()

	l := New(srv.URL, blockengine.DefaultDifficulty, zerolog.Nop())
	// Deliberately skip SyncHeaders: the listener has no trusted header yet.
	_, err := l.VerifyFactInclusion(context.Background(), fact.HashHex(), 1)
	assert.ErrorIs(t, err, axiomerr.ErrBlockNotFound)
}
