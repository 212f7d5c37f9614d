// Package ledger defines the data model shared by the store, crucible, and
// block engine: Source, Fact, FactLink, and Block, plus the structural
// invariants spec.md section 3 places on each. Construction helpers here
// enforce what can be checked from the struct alone; cross-row invariants
// (uniqueness, foreign keys) are the store's responsibility.
package ledger

import (
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/hasher"
)

// FactStatus is the lifecycle stage of a Fact, per spec section 3.
type FactStatus string

const (
	StatusIngested             FactStatus = "ingested"
	StatusLogicallyConsistent  FactStatus = "logically_consistent"
	StatusCorroborated         FactStatus = "corroborated"
	StatusEmpiricallyVerified  FactStatus = "empirically_verified"
)

// Source is a DNS domain observed to have published at least one fact.
type Source struct {
	ID     int64
	Domain string
}

// NormalizeDomain lowercases a hostname and strips a leading "www.",
// matching the Source invariant in spec section 3. A full URL such as
// "https://example.com/a" is reduced to its hostname first.
func NormalizeDomain(host string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(host))
	if u, err := url.Parse(d); err == nil && u.Host != "" {
		d = u.Hostname()
	}
	d = strings.TrimPrefix(d, "www.")
	if d == "" {
		return "", axiomerr.ErrInvalidDomain
	}
	return d, nil
}

// Semantics is the derived structured summary Crucible keeps instead of
// the analyzer's internal parsed-document object graph (spec section 9:
// "Fact objects with embedded parsed-document references").
type Semantics struct {
	Subject  string   `json:"subject"`
	Object   string   `json:"object"`
	Negated  bool     `json:"negated"`
	Entities []string `json:"entities"`
}

// Fact is a sanitized declarative sentence admitted to the ledger.
type Fact struct {
	ID           int64
	Content      string
	Hash         [hasher.Size]byte
	Status       FactStatus
	Score        int
	Disputed     bool
	DisputedReason string
	LastChecked  time.Time
	Semantics    Semantics
	Sources      []string // source domains, for wire/display use
}

// HashHex returns the fact's hash as a lowercase hex string, the form used
// on the wire and in the facts table's UNIQUE hash column.
func (f *Fact) HashHex() string {
	return hex.EncodeToString(f.Hash[:])
}

// NewFact builds a Fact from sanitized content, computing its hash and
// setting the initial lifecycle state. It does not assign sources; callers
// must append at least one before the invariants in Validate hold.
func NewFact(content string, semantics Semantics) (*Fact, error) {
	if strings.TrimSpace(content) == "" {
		return nil, axiomerr.ErrEmptyContent
	}
	return &Fact{
		Content:     content,
		Hash:        hasher.Sum256([]byte(content)),
		Status:      StatusIngested,
		Score:       0,
		Disputed:    false,
		LastChecked: time.Now().UTC(),
		Semantics:   semantics,
	}, nil
}

// Validate checks the structural invariants spec.md section 3 places on a
// Fact: hash matches content, at least one source, score == len(sources)-1.
// The disputed-implies-negative-link invariant is checked by the store,
// which alone knows the FactLink table.
func (f *Fact) Validate() error {
	if strings.TrimSpace(f.Content) == "" {
		return axiomerr.ErrEmptyContent
	}
	if hasher.Sum256([]byte(f.Content)) != f.Hash {
		return axiomerr.ErrHashMismatch
	}
	if len(f.Sources) == 0 {
		return axiomerr.ErrNoSources
	}
	if f.Score != len(f.Sources)-1 {
		return axiomerr.ErrInvalidScore
	}
	return nil
}

// FactLink is an edge between two facts: a positive score is a shared-
// entity relationship strength, score == -1 records a contradiction.
type FactLink struct {
	ID      int64
	Fact1ID int64
	Fact2ID int64
	Score   int
}

// ContradictionScore is the FactLink.Score value used to mark a recorded
// contradiction, per spec section 3.
const ContradictionScore = -1

// NewFactLink canonicalizes endpoint order (fact1ID < fact2ID) and rejects
// a self-referencing link.
func NewFactLink(factAID, factBID int64, score int) (*FactLink, error) {
	if factAID == factBID {
		return nil, axiomerr.ErrFactLinkSelfReference
	}
	if factAID > factBID {
		factAID, factBID = factBID, factAID
	}
	return &FactLink{Fact1ID: factAID, Fact2ID: factBID, Score: score}, nil
}
