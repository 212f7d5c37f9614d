// Package ingest implements the node's periodic ingestion loop (spec
// section 4.6): pull raw text from external content sources, run it
// through Crucible, and when a cycle's accepted-fact batch is non-empty,
// ask the block engine to seal a new block and trigger an outbound sync
// pass. Grounded on internal/consensus/engine.go's Start/Stop
// ticker-and-stopChan loop, generalized from a fixed block-proposal slot
// timer to an arbitrary ingest interval.
package ingest

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/acquire"
	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/crucible"
	"github.com/axiom-network/axiomd/internal/ledger"
	"github.com/axiom-network/axiomd/internal/store"
	"github.com/axiom-network/axiomd/internal/telemetry"

	"errors"
	"fmt"
	"strings"
)

// digestSampleLimit bounds how many fact contents a single cycle's log
// digest quotes, so a large ingest batch doesn't flood the log line.
const digestSampleLimit = 5

// SyncTrigger is called once per cycle that sealed a new block, so the
// caller can kick off an outbound sync pass without this package needing
// to know about peers or the sync engine's shape.
type SyncTrigger func(ctx context.Context)

// Loop is the periodic ingest/seal/sync cycle. Use New and Start/Stop;
// the zero value is not usable.
type Loop struct {
	store      *store.Store
	processor  *crucible.Processor
	sources    []acquire.ContentSource
	difficulty int
	interval   time.Duration
	trigger    SyncTrigger
	metrics    *telemetry.Metrics
	log        zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(
	st *store.Store,
	proc *crucible.Processor,
	sources []acquire.ContentSource,
	difficulty int,
	interval time.Duration,
	trigger SyncTrigger,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) *Loop {
	return &Loop{
		store:      st,
		processor:  proc,
		sources:    sources,
		difficulty: difficulty,
		interval:   interval,
		trigger:    trigger,
		metrics:    metrics,
		log:        log.With().Str("component", "ingest").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start runs the ingest cycle on a ticker until Stop is called.
func (l *Loop) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.RunOnce(context.Background())
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it to finish the cycle it
// may already be mid-way through.
func (l *Loop) Stop() {
	close(l.stopChan)
	l.wg.Wait()
}

// RunOnce executes a single ingest cycle: poll every source, feed
// Crucible, seal a block if anything was accepted, and trigger sync. It
// is exported so a caller can drive a cycle on demand (a manual "ingest
// now" admin trigger, or a test) outside the ticker.
func (l *Loop) RunOnce(ctx context.Context) {
	accepted := l.pollSources(ctx)
	if len(accepted) == 0 {
		return
	}

	block, err := l.sealAndCommit(ctx, accepted)
	if err != nil {
		l.log.Error().Err(err).Int("facts", len(accepted)).Msg("failed to seal ingest batch")
		return
	}

	l.reportDigest(accepted, block.Height)

	if l.metrics != nil {
		l.metrics.FactsAccepted.Add(float64(len(accepted)))
		l.metrics.BlocksSealed.Inc()
		l.metrics.ChainHeight.Set(float64(block.Height))
	}

	if l.trigger != nil {
		l.trigger(ctx)
	}
}

func (l *Loop) pollSources(ctx context.Context) []*ledger.Fact {
	var accepted []*ledger.Fact
	for _, src := range l.sources {
		items, err := src.Fetch(ctx)
		if err != nil {
			l.log.Warn().Err(err).Msg("content source fetch failed, skipping")
			continue
		}
		for _, item := range items {
			facts, err := l.processor.Process(ctx, item.Text, item.Domain)
			if err != nil {
				l.log.Warn().Err(err).Str("domain", item.Domain).Msg("skipping item after processing error")
				continue
			}
			accepted = append(accepted, facts...)
		}
	}
	return accepted
}

// sealAndCommit builds the next block over facts' hashes (insertion
// order, per spec section 3's "ordering is insertion order at seal
// time"), seals it to difficulty, and appends it to the chain.
func (l *Loop) sealAndCommit(ctx context.Context, facts []*ledger.Fact) (*ledger.Block, error) {
	latest, err := localTip(ctx, l.store)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, len(facts))
	for i, f := range facts {
		hashes[i] = f.HashHex()
	}

	block := blockengine.BuildNext(latest, hashes)
	if err := blockengine.Seal(block, l.difficulty); err != nil {
		return nil, fmt.Errorf("seal block %d: %w", block.Height, err)
	}

	err = l.store.WithTx(func(tx *sql.Tx) error {
		return store.InsertBlock(ctx, tx, block)
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

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

// reportDigest logs a human-readable summary of one cycle's newly
// accepted facts (spec section 9 supplemental "fact reporter" feature).
func (l *Loop) reportDigest(facts []*ledger.Fact, sealedHeight int64) {
	n := len(facts)
	if n > digestSampleLimit {
		n = digestSampleLimit
	}
	samples := make([]string, n)
	for i := 0; i < n; i++ {
		samples[i] = facts[i].Content
	}
	l.log.Info().
		Int("accepted", len(facts)).
		Int64("sealed_height", sealedHeight).
		Str("sample", strings.Join(samples, " | ")).
		Msg("ingest cycle accepted new facts")
}
