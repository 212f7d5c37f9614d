package blockengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-network/axiomd/internal/ledger"
)

func TestGenesisBlockShape(t *testing.T) {
	genesis, err := Genesis()
	require.NoError(t, err)

	assert.EqualValues(t, 0, genesis.Height)
	assert.Equal(t, ledger.GenesisPreviousHash, genesis.PreviousHash)
	assert.Empty(t, genesis.FactHashes)
	assert.True(t, strings.HasPrefix(genesis.Hash, "00"))
	assert.NoError(t, ValidateSeal(genesis, GenesisDifficulty))
}

func TestSealProducesDifficultyPrefix(t *testing.T) {
	b := BuildNext(nil, []string{"aa", "bb"})
	require.NoError(t, Seal(b, 1))
	assert.True(t, strings.HasPrefix(b.Hash, "0"))
	assert.NoError(t, ValidateSeal(b, 1))
}

func TestRecomputeHashMatchesSealedHash(t *testing.T) {
	b := BuildNext(nil, []string{"aa", "bb", "cc"})
	require.NoError(t, Seal(b, 1))

	recomputed, err := RecomputeHash(b)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, recomputed)
}

func TestValidateSealRejectsTamperedNonce(t *testing.T) {
	b := BuildNext(nil, nil)
	require.NoError(t, Seal(b, 1))

	b.Nonce++
	assert.Error(t, ValidateSeal(b, 1))
}

func TestValidateContinuityChecksHeightAndPrevHash(t *testing.T) {
	genesis, err := Genesis()
	require.NoError(t, err)

	next := BuildNext(genesis, []string{"aa"})
	require.NoError(t, Seal(next, 1))
	assert.NoError(t, ValidateContinuity(genesis, next))

	next.Height = 5
	assert.Error(t, ValidateContinuity(genesis, next))
}

func TestCanonicalSerializationUsedBySealAndValidateAgree(t *testing.T) {
	b1 := BuildNext(nil, []string{"dd", "aa", "cc"})
	require.NoError(t, Seal(b1, 1))

	b2 := &ledger.Block{
		Height:       b1.Height,
		PreviousHash: b1.PreviousHash,
		FactHashes:   []string{"aa", "cc", "dd"}, // different insertion order, same set
		Timestamp:    b1.Timestamp,
		Nonce:        b1.Nonce,
	}
	recomputed, err := RecomputeHash(b2)
	require.NoError(t, err)
	assert.Equal(t, b1.Hash, recomputed)
}
