// Package sync implements the node's reconciliation loop against its
// peers' HTTP verification APIs (spec section 4.5): per-peer chain-height
// comparison, block batch fetch/validate/append, fact-body batch fetch,
// and in-memory peer reputation scoring. It never re-derives blockengine's
// validation rules; it only calls them, the same way a peer's own sealing
// path does, so a synced chain is indistinguishable from a locally-sealed
// one.
//
// Grounded on internal/consensus/engine.go's processIncomingBlock
// validate-then-append sequencing, generalized here from a single block
// to a batch reconciliation pass.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/apiwire"
	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/ledger"
	"github.com/axiom-network/axiomd/internal/store"
	"github.com/axiom-network/axiomd/internal/telemetry"
)

// Engine drives sync passes against one or more peer base URLs
// ("http://host:port" of a peer's verification API).
type Engine struct {
	store      *store.Store
	difficulty int
	reputation *ReputationTable
	metrics    *telemetry.Metrics
	log        zerolog.Logger
}

func New(st *store.Store, difficulty int, metrics *telemetry.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		store:      st,
		difficulty: difficulty,
		reputation: NewReputationTable(),
		metrics:    metrics,
		log:        log.With().Str("component", "sync").Logger(),
	}
}

// Reputation exposes the engine's peer scores for the verify API or
// telemetry export.
func (e *Engine) Reputation() *ReputationTable {
	return e.reputation
}

// SyncWithPeer runs one reconciliation pass against peerBaseURL. It never
// returns an error for routine "nothing new" outcomes; errors indicate a
// connection failure or a peer that supplied invalid data, both of which
// are also recorded as a reputation penalty before returning.
func (e *Engine) SyncWithPeer(ctx context.Context, peerBaseURL string) error {
	client := newPeerClient(peerBaseURL)

	localHeight, err := store.ChainHeight(ctx, e.store.DB())
	if err != nil {
		return fmt.Errorf("read local chain height: %w", err)
	}

	remoteHeight, err := client.chainHeight(ctx)
	if err != nil {
		e.reputation.Penalize(peerBaseURL)
		e.updateReputationMetric(peerBaseURL)
		e.recordFailure("connection_error")
		return fmt.Errorf("query peer chain height: %w", err)
	}

	if remoteHeight <= localHeight {
		e.reputation.RewardStale(peerBaseURL)
		e.updateReputationMetric(peerBaseURL)
		return nil
	}

	if err := e.syncNewBlocks(ctx, client, peerBaseURL, localHeight); err != nil {
		e.reputation.Penalize(peerBaseURL)
		e.updateReputationMetric(peerBaseURL)
		e.recordFailure("validation_error")
		return err
	}
	return nil
}

func (e *Engine) syncNewBlocks(ctx context.Context, client *peerClient, peerAddr string, localHeight int64) error {
	wireBlocks, err := client.blocksSince(ctx, localHeight)
	if err != nil {
		return fmt.Errorf("fetch blocks since %d: %w", localHeight, err)
	}
	if len(wireBlocks) == 0 {
		e.reputation.RewardStale(peerAddr)
		e.updateReputationMetric(peerAddr)
		return nil
	}

	prev, err := localTip(ctx, e.store)
	if err != nil {
		return err
	}

	blocks := make([]*ledger.Block, 0, len(wireBlocks))
	seen := make(map[string]struct{})
	for _, wb := range wireBlocks {
		b := wb.ToLedger()

		if err := blockengine.ValidateContinuity(prev, b); err != nil {
			return fmt.Errorf("%w: block %d: %v", axiomerr.ErrPeerMisbehaved, b.Height, err)
		}
		if err := blockengine.ValidateSeal(b, e.difficulty); err != nil {
			return fmt.Errorf("%w: block %d: %v", axiomerr.ErrPeerMisbehaved, b.Height, err)
		}

		blocks = append(blocks, b)
		for _, h := range b.FactHashes {
			seen[h] = struct{}{}
		}
		prev = b
	}

	missing, err := e.missingFactHashes(ctx, seen)
	if err != nil {
		return err
	}

	newFacts, err := e.fetchAndVerifyFacts(ctx, client, missing)
	if err != nil {
		return err
	}

	if err := e.commit(ctx, blocks, newFacts); err != nil {
		return err
	}

	e.reputation.RewardNewBlocks(peerAddr, len(blocks))
	e.updateReputationMetric(peerAddr)
	if e.metrics != nil {
		height, herr := store.ChainHeight(ctx, e.store.DB())
		if herr == nil {
			e.metrics.ChainHeight.Set(float64(height))
		}
		e.metrics.BlocksSealed.Add(float64(len(blocks)))
	}
	e.log.Info().Int("blocks", len(blocks)).Int("new_facts", len(newFacts)).Str("peer", peerAddr).Msg("sync pass applied new blocks")
	return nil
}

// localTip returns the current chain tip, or nil if the chain is empty,
// the shape blockengine.ValidateContinuity expects for a genesis check.
func localTip(ctx context.Context, st *store.Store) (*ledger.Block, error) {
	b, err := store.LatestBlock(ctx, st.DB())
	if err != nil {
		if errors.Is(err, axiomerr.ErrBlockNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local tip: %w", err)
	}
	return b, nil
}

func (e *Engine) missingFactHashes(ctx context.Context, seen map[string]struct{}) ([]string, error) {
	hashes := make([]string, 0, len(seen))
	for h := range seen {
		hashes = append(hashes, h)
	}
	known, err := store.FactsByHashes(ctx, e.store.DB(), hashes)
	if err != nil {
		return nil, fmt.Errorf("check known facts: %w", err)
	}
	missing := make([]string, 0, len(hashes)-len(known))
	for _, h := range hashes {
		if _, ok := known[h]; !ok {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

func (e *Engine) fetchAndVerifyFacts(ctx context.Context, client *peerClient, missing []string) ([]*ledger.Fact, error) {
	if len(missing) == 0 {
		return nil, nil
	}
	wireFacts, err := client.factsByHash(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("fetch fact bodies: %w", err)
	}

	byHash := make(map[string]apiwire.Fact, len(wireFacts))
	for _, wf := range wireFacts {
		byHash[wf.Hash] = wf
	}
	for _, h := range missing {
		if _, ok := byHash[h]; !ok {
			return nil, fmt.Errorf("%w: %s", axiomerr.ErrFactBodyMissing, h)
		}
	}

	facts := make([]*ledger.Fact, 0, len(wireFacts))
	for _, wf := range wireFacts {
		f, err := wf.ToLedger()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", axiomerr.ErrPeerMisbehaved, err)
		}
		f.Status = ledger.StatusIngested
		if f.Score > 0 {
			f.Status = ledger.StatusCorroborated
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// commit persists every new fact and then every new block, in one staged
// transaction (spec section 4.5 step 4/7: "Append B to local chain in a
// staged transaction" / "On any validation error ... discard the pending
// batch").
func (e *Engine) commit(ctx context.Context, blocks []*ledger.Block, facts []*ledger.Fact) error {
	return e.store.WithTx(func(tx *sql.Tx) error {
		for _, f := range facts {
			sourceIDs := make([]int64, 0, len(f.Sources))
			for _, domain := range f.Sources {
				src, err := store.GetOrCreateSource(ctx, tx, domain)
				if err != nil {
					return fmt.Errorf("get or create source %s: %w", domain, err)
				}
				sourceIDs = append(sourceIDs, src.ID)
			}
			if err := store.InsertFact(ctx, tx, f, sourceIDs); err != nil {
				return fmt.Errorf("insert synced fact %s: %w", f.HashHex(), err)
			}
		}
		for _, b := range blocks {
			if err := store.InsertBlock(ctx, tx, b); err != nil {
				return fmt.Errorf("insert synced block %d: %w", b.Height, err)
			}
		}
		return nil
	})
}

func (e *Engine) updateReputationMetric(peerAddr string) {
	if e.metrics == nil {
		return
	}
	e.metrics.PeerReputation.WithLabelValues(peerAddr).Set(e.reputation.Score(peerAddr))
}

func (e *Engine) recordFailure(reason string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SyncFailuresTotal.WithLabelValues(reason).Inc()
}
