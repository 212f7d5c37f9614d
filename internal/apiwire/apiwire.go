// Package apiwire defines the JSON-on-the-wire shapes for blocks and facts
// exchanged over the HTTP verification API (spec section 6/4.6), and the
// conversions to and from internal/ledger's domain types. Both
// internal/verifyapi (the server encoding these) and internal/sync (the
// client decoding them) depend on this package instead of duplicating
// field tags.
package apiwire

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/axiom-network/axiomd/internal/hasher"
	"github.com/axiom-network/axiomd/internal/ledger"
)

// Block is the on-wire representation of a ledger.Block (spec section 6).
type Block struct {
	Height       int64    `json:"height"`
	Hash         string   `json:"hash"`
	PreviousHash string   `json:"previous_hash"`
	MerkleRoot   string   `json:"merkle_root"`
	Timestamp    float64  `json:"timestamp"`
	Nonce        uint64   `json:"nonce"`
	FactHashes   []string `json:"fact_hashes"`
}

// FromLedgerBlock converts a domain block to its wire shape.
func FromLedgerBlock(b *ledger.Block) Block {
	return Block{
		Height:       b.Height,
		Hash:         b.Hash,
		PreviousHash: b.PreviousHash,
		MerkleRoot:   b.MerkleRootHex,
		Timestamp:    b.Timestamp,
		Nonce:        b.Nonce,
		FactHashes:   b.FactHashes,
	}
}

// ToLedger converts a wire block back to the domain type.
func (w Block) ToLedger() *ledger.Block {
	return &ledger.Block{
		Height:        w.Height,
		Hash:          w.Hash,
		PreviousHash:  w.PreviousHash,
		MerkleRootHex: w.MerkleRoot,
		Timestamp:     w.Timestamp,
		Nonce:         w.Nonce,
		FactHashes:    w.FactHashes,
	}
}

// Fact is the on-wire representation of a ledger.Fact (spec section 6).
type Fact struct {
	Content        string          `json:"content"`
	Hash           string          `json:"hash"`
	Score          int             `json:"score"`
	Disputed       bool            `json:"disputed"`
	DisputedReason string          `json:"disputed_reason,omitempty"`
	LastChecked    string          `json:"last_checked"`
	Semantics      ledger.Semantics `json:"semantics"`
	Sources        []string        `json:"sources"`
}

// FromLedgerFact converts a domain fact to its wire shape.
func FromLedgerFact(f *ledger.Fact) Fact {
	return Fact{
		Content:        f.Content,
		Hash:           f.HashHex(),
		Score:          f.Score,
		Disputed:       f.Disputed,
		DisputedReason: f.DisputedReason,
		LastChecked:    f.LastChecked.UTC().Format(time.RFC3339),
		Semantics:      f.Semantics,
		Sources:        f.Sources,
	}
}

// ToLedger converts a wire fact back to the domain type, verifying that
// Hash actually matches sha256(Content) along the way (spec section 4.5
// step 6: "If any returned fact fails the hash check, abort").
func (w Fact) ToLedger() (*ledger.Fact, error) {
	digest := hasher.Sum256([]byte(w.Content))
	if hex.EncodeToString(digest[:]) != w.Hash {
		return nil, fmt.Errorf("fact %s: declared hash does not match sha256(content)", w.Hash)
	}
	lastChecked, err := time.Parse(time.RFC3339, w.LastChecked)
	if err != nil {
		return nil, fmt.Errorf("fact %s: parse last_checked: %w", w.Hash, err)
	}
	return &ledger.Fact{
		Content:        w.Content,
		Hash:           digest,
		Score:          w.Score,
		Disputed:       w.Disputed,
		DisputedReason: w.DisputedReason,
		LastChecked:    lastChecked,
		Semantics:      w.Semantics,
		Sources:        w.Sources,
	}, nil
}

// ProofStep is the on-wire representation of a hasher.ProofStep in a
// /merkle_proof response: the sibling hash and which side of the pairing
// it occupied, in hex (spec section 4.6/6: sibling_hex, pos "L"|"R").
type ProofStep struct {
	SiblingHex string `json:"sibling_hex"`
	Pos        string `json:"pos"` // "L" or "R"
}

// FromProofSteps converts a Merkle proof to its wire shape.
func FromProofSteps(steps []hasher.ProofStep) []ProofStep {
	wire := make([]ProofStep, len(steps))
	for i, s := range steps {
		pos := "L"
		if s.Side == hasher.Right {
			pos = "R"
		}
		wire[i] = ProofStep{SiblingHex: hex.EncodeToString(s.Sibling[:]), Pos: pos}
	}
	return wire
}

// ToProofSteps converts a wire Merkle proof back to hasher's form, for a
// listener verifying inclusion locally (spec section 4.7).
func ToProofSteps(wire []ProofStep) ([]hasher.ProofStep, error) {
	steps := make([]hasher.ProofStep, len(wire))
	for i, w := range wire {
		sib, err := hasher.HashFromHex(w.SiblingHex)
		if err != nil {
			return nil, fmt.Errorf("proof step %d: %w", i, err)
		}
		side := hasher.Left
		if w.Pos == "R" {
			side = hasher.Right
		}
		steps[i] = hasher.ProofStep{Sibling: sib, Side: side}
	}
	return steps, nil
}

// MerkleProofResponse is the wire shape a listener verifies locally
// against its trusted header chain using internal/hasher, without needing
// to trust the serving node's inclusion claim beyond the block hash it
// already validated (spec section 4.7). Defined here rather than in
// internal/verifyapi so internal/listener can decode it without pulling in
// internal/store.
type MerkleProofResponse struct {
	BlockHeight int64       `json:"block_height"`
	MerkleRoot  string      `json:"merkle_root"`
	LeafHash    string      `json:"leaf_hash"`
	Proof       []ProofStep `json:"proof"`
}
