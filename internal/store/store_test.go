package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-network/axiomd/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestFact(t *testing.T, s *Store, content, domain string) *ledger.Fact {
	t.Helper()
	f, err := ledger.NewFact(content, ledger.Semantics{
		Subject: "earth", Object: "round", Entities: []string{"earth"},
	})
	require.NoError(t, err)
	f.Sources = []string{domain}

	err = s.WithTx(func(tx *sql.Tx) error {
		src, err := GetOrCreateSource(context.Background(), tx, domain)
		if err != nil {
			return err
		}
		return InsertFact(context.Background(), tx, f, []int64{src.ID})
	})
	require.NoError(t, err)
	return f
}

func TestGetOrCreateSourceIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var first, second ledger.Source
	err := s.WithTx(func(tx *sql.Tx) error {
		var err error
		first, err = GetOrCreateSource(ctx, tx, "example.com")
		if err != nil {
			return err
		}
		second, err = GetOrCreateSource(ctx, tx, "example.com")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestInsertFactAndFetchByHash(t *testing.T) {
	s := openTestStore(t)
	f := insertTestFact(t, s, "the earth is round.", "example.com")

	got, err := FactByHash(context.Background(), s.db, f.HashHex())
	require.NoError(t, err)
	assert.Equal(t, f.Content, got.Content)
	assert.Equal(t, []string{"example.com"}, got.Sources)
	assert.Equal(t, ledger.StatusIngested, got.Status)
}

func TestFactsByHashesOmitsUnknown(t *testing.T) {
	s := openTestStore(t)
	f := insertTestFact(t, s, "water boils at 100 celsius.", "example.com")

	found, err := FactsByHashes(context.Background(), s.db, []string{f.HashHex(), "deadbeef"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, f.HashHex())
}

func TestUpdateFactVerdictPersists(t *testing.T) {
	s := openTestStore(t)
	f := insertTestFact(t, s, "the sky is blue.", "example.com")

	err := s.WithTx(func(tx *sql.Tx) error {
		return UpdateFactVerdict(context.Background(), tx, f.ID, ledger.StatusCorroborated, 1, false, "")
	})
	require.NoError(t, err)

	got, err := FactByHash(context.Background(), s.db, f.HashHex())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCorroborated, got.Status)
	assert.Equal(t, 1, got.Score)
}

func TestFactLinkInsertAndLookup(t *testing.T) {
	s := openTestStore(t)
	a := insertTestFact(t, s, "the moon orbits the earth.", "a.com")
	b := insertTestFact(t, s, "the moon does not orbit the earth.", "b.com")

	err := s.WithTx(func(tx *sql.Tx) error {
		link, err := ledger.NewFactLink(a.ID, b.ID, ledger.ContradictionScore)
		if err != nil {
			return err
		}
		return InsertFactLink(context.Background(), tx, link)
	})
	require.NoError(t, err)

	has, err := HasContradiction(context.Background(), s.db, a.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBlockInsertAndQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	genesis := &ledger.Block{
		Height:        0,
		PreviousHash:  ledger.GenesisPreviousHash,
		FactHashes:    nil,
		MerkleRootHex: "",
		Timestamp:     float64(time.Now().Unix()),
		Hash:          "00abc",
	}
	next := &ledger.Block{
		Height:       1,
		PreviousHash: genesis.Hash,
		FactHashes:   []string{"aa"},
		Timestamp:    float64(time.Now().Unix()),
		Hash:         "00def",
	}

	err := s.WithTx(func(tx *sql.Tx) error {
		if err := InsertBlock(ctx, tx, genesis); err != nil {
			return err
		}
		return InsertBlock(ctx, tx, next)
	})
	require.NoError(t, err)

	height, err := ChainHeight(ctx, s.db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, height)

	latest, err := LatestBlock(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, next.Hash, latest.Hash)

	since, err := BlocksSince(ctx, s.db, -1)
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

func TestChainHeightEmptyChainIsNegativeOne(t *testing.T) {
	s := openTestStore(t)
	height, err := ChainHeight(context.Background(), s.db)
	require.NoError(t, err)
	assert.EqualValues(t, -1, height)
}
