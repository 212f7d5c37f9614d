package ledger

import (
	"encoding/hex"
	"sort"

	"github.com/axiom-network/axiomd/internal/hasher"
)

// GenesisPreviousHash is the fixed previous_hash sentinel for height 0,
// per spec section 3 ("\"0\" only at height 0").
const GenesisPreviousHash = "0"

// Block is an immutable record binding an ordered batch of fact hashes to
// the prior block by hash chain and Merkle commitment.
//
// FactHashes is stored in insertion order (the order facts were accepted
// into the batch); the Merkle root is computed over the sorted order, so
// MerkleRoot() and the cached MerkleRootHex field are stable regardless of
// batch ordering.
type Block struct {
	Height       int64
	PreviousHash string
	FactHashes   []string // hex, insertion order
	MerkleRootHex string
	Timestamp    float64 // unix seconds
	Nonce        uint64
	Hash         string // hex
}

// SortedFactHashes returns FactHashes sorted ascending, the order the
// Merkle tree and canonical serialization are built over (spec section 4.3).
func (b *Block) SortedFactHashes() []string {
	sorted := append([]string(nil), b.FactHashes...)
	sort.Strings(sorted)
	return sorted
}

// MerkleLeaves decodes the sorted fact hashes into fixed-size hash values
// suitable for hasher.MerkleRoot/MerkleProof.
func (b *Block) MerkleLeaves() ([][hasher.Size]byte, error) {
	sorted := b.SortedFactHashes()
	leaves := make([][hasher.Size]byte, len(sorted))
	for i, h := range sorted {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, err
		}
		var fixed [hasher.Size]byte
		copy(fixed[:], raw)
		leaves[i] = fixed
	}
	return leaves, nil
}

// MerkleRoot recomputes the block's Merkle root from its sorted fact
// hashes. It is derivable and need not be persisted, but Block caches it
// as MerkleRootHex for fast proof service (spec section 4.3).
func (b *Block) MerkleRoot() ([hasher.Size]byte, error) {
	leaves, err := b.MerkleLeaves()
	if err != nil {
		return [hasher.Size]byte{}, err
	}
	return hasher.MerkleRoot(leaves), nil
}

// IndexOfFactHash returns the position of factHash within the block's
// sorted leaf list, or -1 if absent. This is the index the Merkle proof
// service needs for a given fact.
func (b *Block) IndexOfFactHash(factHash string) int {
	sorted := b.SortedFactHashes()
	for i, h := range sorted {
		if h == factHash {
			return i
		}
	}
	return -1
}
