package hasher

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leavesOf(values ...string) [][Size]byte {
	out := make([][Size]byte, len(values))
	for i, v := range values {
		out[i] = Sum256([]byte(v))
	}
	return out
}

func TestMerkleRootSingleLeafEqualsLeaf(t *testing.T) {
	leaves := leavesOf("only")
	assert.Equal(t, leaves[0], MerkleRoot(leaves))
}

func TestMerkleRootEmptyIsHashOfEmptyString(t *testing.T) {
	assert.Equal(t, Sum256(nil), MerkleRoot(nil))
}

func TestMerkleRootOddLayerDuplicatesLast(t *testing.T) {
	leaves := leavesOf("a", "b", "c")
	got := MerkleRoot(leaves)

	// Manually reconstruct: pair(a,b), pair(c,c), then pair of those two.
	ab := hashPair(leaves[0], leaves[1])
	cc := hashPair(leaves[2], leaves[2])
	want := hashPair(ab, cc)

	assert.Equal(t, want, got)
}

func TestProofRoundTripsForEveryIndex(t *testing.T) {
	leaves := leavesOf("alpha", "beta", "gamma", "delta", "epsilon")
	root := MerkleRoot(leaves)

	for i := range leaves {
		proof := MerkleProof(leaves, i)
		require.NotNil(t, proof, "index %d", i)
		assert.True(t, VerifyProof(leaves[i], proof, root), "index %d", i)
	}
}

func TestProofOutOfRangeReturnsNil(t *testing.T) {
	leaves := leavesOf("x", "y")
	assert.Nil(t, MerkleProof(leaves, -1))
	assert.Nil(t, MerkleProof(leaves, 2))
}

func TestVerifyProofRejectsTamperedSibling(t *testing.T) {
	leaves := leavesOf("one", "two", "three", "four")
	root := MerkleRoot(leaves)
	proof := MerkleProof(leaves, 1)
	require.NotEmpty(t, proof)

	tampered := make([]ProofStep, len(proof))
	copy(tampered, proof)
	tampered[0].Sibling[0] ^= 0xFF

	assert.False(t, VerifyProof(leaves[1], tampered, root))
	assert.True(t, VerifyProof(leaves[1], proof, root))
}

func TestVerifyProofIsPureAndTotal(t *testing.T) {
	leaves := leavesOf("p", "q", "r")
	root := MerkleRoot(leaves)
	proof := MerkleProof(leaves, 2)

	// Calling twice with identical inputs must agree; nothing external is consulted.
	assert.Equal(t, VerifyProof(leaves[2], proof, root), VerifyProof(leaves[2], proof, root))
}

func TestHashFromHexRoundTrip(t *testing.T) {
	want := Sum256([]byte("round trip"))
	got, err := HashFromHex(hex.EncodeToString(want[:]))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHashFromHexRejectsWrongLength(t *testing.T) {
	_, err := HashFromHex("abcd")
	assert.Error(t, err)
}
