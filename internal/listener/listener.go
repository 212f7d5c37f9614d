// Package listener implements the lightweight header-only node of spec
// section 4.6: it trusts exactly one sealer's Verification API, keeps a
// locally-validated chain of block headers (height, hash, previous_hash,
// merkle_root, nonce, fact_hashes), and checks fact inclusion against
// that trusted root without ever touching Store or Crucible.
//
// Grounded on internal/sync/client.go's getJSON/do HTTP client shape
// (this package cannot reuse that one directly, as peerClient is
// unexported) and internal/verifyapi/server.go's merkleProof handler,
// whose apiwire.MerkleProofResponse this client decodes and verifies
// locally.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/apiwire"
	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/hasher"
	"github.com/axiom-network/axiomd/internal/ledger"
)

const httpTimeout = 15 * time.Second

// Listener holds a validated header chain sourced from a single trusted
// sealer and answers fact-inclusion queries against it.
type Listener struct {
	sealerURL  string
	difficulty int
	http       *http.Client
	log        zerolog.Logger

	mu      sync.Mutex
	headers []*ledger.Block // by height, headers[0] is genesis
}

// New builds a Listener trusting sealerURL's Verification API, validating
// every header it adopts against difficulty (the sealer's configured
// proof-of-work difficulty for non-genesis blocks).
func New(sealerURL string, difficulty int, log zerolog.Logger) *Listener {
	return &Listener{
		sealerURL:  sealerURL,
		difficulty: difficulty,
		http:       &http.Client{Timeout: httpTimeout},
		log:        log.With().Str("component", "listener").Logger(),
	}
}

// Height reports the highest locally-held header, or -1 if none yet.
func (l *Listener) Height() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.headers) == 0 {
		return -1
	}
	return l.headers[len(l.headers)-1].Height
}

// SyncHeaders fetches and validates every header past the local tip,
// rejecting the whole batch if any header fails its seal or continuity
// check (spec section 4.7: a listener never adopts an unverified header).
func (l *Listener) SyncHeaders(ctx context.Context) error {
	l.mu.Lock()
	localHeight := int64(-1)
	var tip *ledger.Block
	if n := len(l.headers); n > 0 {
		tip = l.headers[n-1]
		localHeight = tip.Height
	}
	l.mu.Unlock()

	remoteHeight, err := l.chainHeight(ctx)
	if err != nil {
		return fmt.Errorf("query sealer chain height: %w", err)
	}
	if remoteHeight <= localHeight {
		return nil
	}

	blocks, err := l.blocksSince(ctx, localHeight)
	if err != nil {
		return fmt.Errorf("fetch headers since %d: %w", localHeight, err)
	}

	validated := make([]*ledger.Block, 0, len(blocks))
	prev := tip
	for _, b := range blocks {
		block := b
		difficulty := l.difficulty
		if block.Height == 0 {
			difficulty = blockengine.GenesisDifficulty
		}
		if err := blockengine.ValidateSeal(block, difficulty); err != nil {
			return fmt.Errorf("header at height %d failed seal check: %w", block.Height, err)
		}
		if err := blockengine.ValidateContinuity(prev, block); err != nil {
			return fmt.Errorf("header at height %d failed continuity check: %w", block.Height, err)
		}
		validated = append(validated, block)
		prev = block
	}

	l.mu.Lock()
	l.headers = append(l.headers, validated...)
	l.mu.Unlock()

	l.log.Info().Int64("from", localHeight+1).Int64("to", remoteHeight).Msg("adopted sealer headers")
	return nil
}

// headerAt returns the locally-trusted header at height, if any.
func (l *Listener) headerAt(height int64) (*ledger.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if height < 0 || height >= int64(len(l.headers)) {
		return nil, false
	}
	return l.headers[height], true
}

// VerifyFactInclusion asks the sealer for a Merkle proof of factHash at
// blockHeight and verifies it against the locally-trusted header's
// merkle_root, never trusting the sealer's claim beyond that root (spec
// section 4.7).
func (l *Listener) VerifyFactInclusion(ctx context.Context, factHash string, blockHeight int64) (bool, error) {
	header, ok := l.headerAt(blockHeight)
	if !ok {
		return false, axiomerr.ErrBlockNotFound
	}

	var resp apiwire.MerkleProofResponse
	path := fmt.Sprintf("/merkle_proof?fact_hash=%s&block_height=%d", url.QueryEscape(factHash), blockHeight)
	if err := l.getJSON(ctx, path, &resp); err != nil {
		return false, fmt.Errorf("query merkle proof: %w", err)
	}

	if resp.MerkleRoot != header.MerkleRootHex {
		return false, fmt.Errorf("sealer returned root %s, does not match trusted header root %s", resp.MerkleRoot, header.MerkleRootHex)
	}

	leaf, err := hasher.HashFromHex(resp.LeafHash)
	if err != nil {
		return false, fmt.Errorf("decode leaf hash: %w", err)
	}
	root, err := hasher.HashFromHex(resp.MerkleRoot)
	if err != nil {
		return false, fmt.Errorf("decode merkle root: %w", err)
	}
	steps, err := apiwire.ToProofSteps(resp.Proof)
	if err != nil {
		return false, fmt.Errorf("decode proof steps: %w", err)
	}

	return hasher.VerifyProof(leaf, steps, root), nil
}

type chainHeightResponse struct {
	Height int64 `json:"height"`
}

func (l *Listener) chainHeight(ctx context.Context) (int64, error) {
	var resp chainHeightResponse
	if err := l.getJSON(ctx, "/chain_height", &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

type blocksResponse struct {
	Blocks []apiwire.Block `json:"blocks"`
}

func (l *Listener) blocksSince(ctx context.Context, since int64) ([]*ledger.Block, error) {
	path := "/blocks?since=" + strconv.FormatInt(since, 10)
	var resp blocksResponse
	if err := l.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	blocks := make([]*ledger.Block, len(resp.Blocks))
	for i, w := range resp.Blocks {
		blocks[i] = w.ToLedger()
	}
	return blocks, nil
}

func (l *Listener) getJSON(ctx context.Context, path string, out any) error {
	u, err := url.Parse(l.sealerURL + path)
	if err != nil {
		return fmt.Errorf("invalid sealer url %s%s: %w", l.sealerURL, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request %s: status %d: %s", req.URL, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL, err)
	}
	return nil
}
