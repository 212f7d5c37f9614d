package verifyapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-network/axiomd/internal/apiwire"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/hasher"
	"github.com/axiom-network/axiomd/internal/ledger"
	"github.com/axiom-network/axiomd/internal/store"
)

// seededStore builds genesis + one block carrying a single fact, and
// returns the store plus that fact and block for assertions.
func seededStore(t *testing.T) (*store.Store, *ledger.Fact, *ledger.Block) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	genesis, err := blockengine.Genesis()
	require.NoError(t, err)

	fact, err := ledger.NewFact("Globex Inc reported record earnings.",
		ledger.Semantics{Subject: "globex", Object: "earnings", Entities: []string{"Globex Inc"}})
	require.NoError(t, err)
	fact.Sources = []string{"example.com"}

	block := blockengine.BuildNext(genesis, []string{fact.HashHex()})
	require.NoError(t, blockengine.Seal(block, blockengine.GenesisDifficulty))

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

	return st, fact, block
}

func TestHealthz(t *testing.T) {
	st, _, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDIsGeneratedAndEchoed(t *testing.T) {
	st, _, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRequestIDEchoesCallerSuppliedValue(t *testing.T) {
	st, _, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "caller-supplied-id")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "caller-supplied-id", resp.Header.Get("X-Request-Id"))
}

func TestChainHeightReflectsSealedBlocks(t *testing.T) {
	st, _, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chain_height")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Height int64 `json:"height"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1), body.Height)
}

func TestBlocksSinceReturnsOnlyNewer(t *testing.T) {
	st, _, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/blocks?since=0")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Blocks []apiwire.Block `json:"blocks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Blocks, 1)
	assert.Equal(t, int64(1), body.Blocks[0].Height)
}

func TestFactsByHashReturnsRequestedBodies(t *testing.T) {
	st, fact, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	payload, err := json.Marshal(map[string][]string{"fact_hashes": {fact.HashHex(), "deadbeef"}})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/facts_by_hash", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Facts []apiwire.Fact `json:"facts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Facts, 1)
	assert.Equal(t, fact.Content, body.Facts[0].Content)
}

func TestMerkleProofVerifiesAgainstBlockRoot(t *testing.T) {
	st, fact, block := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/merkle_proof?fact_hash=" + fact.HashHex() + "&block_height=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body apiwire.MerkleProofResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	steps, err := apiwire.ToProofSteps(body.Proof)
	require.NoError(t, err)
	root, err := hasher.HashFromHex(body.MerkleRoot)
	require.NoError(t, err)
	leaf, err := hasher.HashFromHex(body.LeafHash)
	require.NoError(t, err)

	assert.True(t, hasher.VerifyProof(leaf, steps, root))
	assert.Equal(t, block.MerkleRootHex, body.MerkleRoot)
}

func TestMerkleProofUnknownFactReturnsNotFound(t *testing.T) {
	st, _, _ := seededStore(t)
	srv := httptest.NewServer(New(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/merkle_proof?fact_hash=deadbeef&block_height=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
