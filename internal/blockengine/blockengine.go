// Package blockengine builds and seals blocks: given a batch of accepted
// facts it computes the next block's header, runs proof-of-work sealing to
// the network's fixed difficulty, and exposes the canonical serialization
// used both when sealing and when a peer's block is re-validated during
// sync (spec section 4.3). Sealing is pure CPU work: (header, nonce) ->
// hash, restartable and deterministic, so it is safe to run on a dedicated
// worker without ever touching the network multiplexer (spec section 9).
package blockengine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/ledger"
)

// DefaultDifficulty is the number of leading hex zeros required of a
// sealed block's hash, fixed network-wide (spec section 6).
const DefaultDifficulty = 4

// GenesisDifficulty is the (lower) difficulty the genesis block is sealed
// to (spec section 6).
const GenesisDifficulty = 2

// header is the deterministic mapping sealed/validated against: field
// names in lexicographic order, fact hashes sorted, no insignificant
// whitespace. json.Marshal on a struct with this field order and no
// indentation satisfies that directly.
type header struct {
	FactHashes   []string `json:"fact_hashes"`
	Height       int64    `json:"height"`
	Nonce        uint64   `json:"nonce"`
	PreviousHash string   `json:"previous_hash"`
	Timestamp    float64  `json:"timestamp"`
}

// canonicalBytes returns the exact byte sequence hashed for a block's
// identity. Field order within the struct above is already lexicographic
// by tag name, and encoding/json never inserts whitespace by default, so
// this is the single definition both Seal and Validate rely on (spec
// section 4.3's invariant that sealing and validation share one hash
// function).
func canonicalBytes(height int64, previousHash string, sortedFactHashes []string, timestamp float64, nonce uint64) ([]byte, error) {
	h := header{
		FactHashes:   sortedFactHashes,
		Height:       height,
		Nonce:        nonce,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
	}
	buf, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal block header: %w", err)
	}
	return buf, nil
}

// BuildNext constructs the next block for factHashes (hex, insertion
// order) on top of latest, with a fresh timestamp and nonce 0. The caller
// must Seal() the result before it is valid.
func BuildNext(latest *ledger.Block, factHashes []string) *ledger.Block {
	height := int64(0)
	prevHash := ledger.GenesisPreviousHash
	if latest != nil {
		height = latest.Height + 1
		prevHash = latest.Hash
	}
	return &ledger.Block{
		Height:       height,
		PreviousHash: prevHash,
		FactHashes:   append([]string(nil), factHashes...),
		Timestamp:    float64(time.Now().Unix()),
		Nonce:        0,
	}
}

// Seal mines b's nonce until its hash begins with difficulty leading hex
// zeros, then sets b.Hash and b.MerkleRootHex. It is restartable: calling
// Seal again on the same block (e.g. after a timestamp bump) mines fresh.
func Seal(b *ledger.Block, difficulty int) error {
	sortedHashes := b.SortedFactHashes()

	root, err := b.MerkleRoot()
	if err != nil {
		return fmt.Errorf("compute merkle root: %w", err)
	}
	b.MerkleRootHex = hex.EncodeToString(root[:])

	prefix := strings.Repeat("0", difficulty)
	for nonce := uint64(0); ; nonce++ {
		buf, err := canonicalBytes(b.Height, b.PreviousHash, sortedHashes, b.Timestamp, nonce)
		if err != nil {
			return err
		}
		digest := sha256.Sum256(buf)
		hexDigest := hex.EncodeToString(digest[:])
		if strings.HasPrefix(hexDigest, prefix) {
			b.Nonce = nonce
			b.Hash = hexDigest
			return nil
		}
	}
}

// RecomputeHash computes the hash b's declared fields imply, independent
// of b.Hash, for validating a block received from a peer.
func RecomputeHash(b *ledger.Block) (string, error) {
	buf, err := canonicalBytes(b.Height, b.PreviousHash, b.SortedFactHashes(), b.Timestamp, b.Nonce)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(buf)
	return hex.EncodeToString(digest[:]), nil
}

// ValidateSeal checks that b's declared hash matches its recomputed hash
// and satisfies the required proof-of-work difficulty.
func ValidateSeal(b *ledger.Block, difficulty int) error {
	recomputed, err := RecomputeHash(b)
	if err != nil {
		return err
	}
	if recomputed != b.Hash {
		return axiomerr.ErrHashRecomputeFailed
	}
	if !strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty)) {
		return axiomerr.ErrInsufficientPoW
	}
	root, err := b.MerkleRoot()
	if err != nil {
		return err
	}
	if hex.EncodeToString(root[:]) != b.MerkleRootHex && b.MerkleRootHex != "" {
		return axiomerr.ErrMerkleMismatch
	}
	return nil
}

// ValidateContinuity checks that b correctly extends prev: height is
// exactly prev.Height+1 and previous_hash matches prev.Hash. For the
// genesis block, pass prev == nil.
func ValidateContinuity(prev, b *ledger.Block) error {
	if prev == nil {
		if b.Height != 0 {
			return axiomerr.ErrInvalidHeight
		}
		if b.PreviousHash != ledger.GenesisPreviousHash {
			return axiomerr.ErrInvalidPreviousHash
		}
		return nil
	}
	if b.Height != prev.Height+1 {
		return axiomerr.ErrInvalidHeight
	}
	if !bytes.Equal([]byte(b.PreviousHash), []byte(prev.Hash)) {
		return axiomerr.ErrInvalidPreviousHash
	}
	return nil
}

// genesisTimestamp is fixed so every node seals and recognizes the same
// genesis block; unlike later blocks it cannot use time.Now(), or no two
// independently-bootstrapped nodes would ever agree on height 0.
const genesisTimestamp = 1704067200 // 2024-01-01T00:00:00Z

// Genesis builds and seals the fixed genesis block: height 0, empty fact
// list, previous_hash "0", sealed to GenesisDifficulty.
func Genesis() (*ledger.Block, error) {
	b := &ledger.Block{
		Height:       0,
		PreviousHash: ledger.GenesisPreviousHash,
		FactHashes:   nil,
		Timestamp:    genesisTimestamp,
		Nonce:        0,
	}
	if err := Seal(b, GenesisDifficulty); err != nil {
		return nil, fmt.Errorf("seal genesis block: %w", err)
	}
	return b, nil
}
