// Command axiomd runs a full AXIOM node: it ingests raw text into
// corroborated facts, seals them into a proof-of-work chained ledger,
// gossips with peers over the signed P2P transport, reconciles against
// configured peers over the verification API, and serves that same API
// for its own peers and listener nodes.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/analyzer"
	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/config"
	"github.com/axiom-network/axiomd/internal/crucible"
	"github.com/axiom-network/axiomd/internal/ingest"
	"github.com/axiom-network/axiomd/internal/keystore"
	"github.com/axiom-network/axiomd/internal/ledger"
	"github.com/axiom-network/axiomd/internal/p2p"
	"github.com/axiom-network/axiomd/internal/store"
	syncengine "github.com/axiom-network/axiomd/internal/sync"
	"github.com/axiom-network/axiomd/internal/telemetry"
	"github.com/axiom-network/axiomd/internal/verifyapi"
)

// node holds every long-lived component a running axiomd wires together.
type node struct {
	store     *store.Store
	transport *p2p.Transport
	syncer    *syncengine.Engine
	ingestor  *ingest.Loop
	verifySrv *http.Server
	metricSrv *http.Server
}

func buildNode(cfg config.Config, log zerolog.Logger, metrics *telemetry.Metrics) (*node, error) {
	st, err := store.Open(store.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tip, err := localTip(context.Background(), st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	if tip == nil {
		log.Info().Msg("chain empty, sealing genesis block")
		genesis, err := blockengine.Genesis()
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("build genesis block: %w", err)
		}
		err = st.WithTx(func(tx *sql.Tx) error {
			return store.InsertBlock(context.Background(), tx, genesis)
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("commit genesis block: %w", err)
		}
		log.Info().Str("hash", genesis.Hash).Msg("genesis block sealed")
	} else {
		log.Info().Int64("height", tip.Height).Msg("chain already initialized")
	}

	identity, err := loadOrGenerateIdentity(cfg.SigningKeyPath, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load signing identity: %w", err)
	}

	transport, err := p2p.New(p2p.Config{
		ListenAddr:     fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port),
		AdvertisedIP:   cfg.Advertise.IP,
		AdvertisedPort: cfg.Advertise.Port,
		TLSCertPath:    cfg.TLS.CertPath,
		TLSKeyPath:     cfg.TLS.KeyPath,
	}, identity, log, metrics)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("start p2p transport: %w", err)
	}

	syncer := syncengine.New(st, cfg.Difficulty, metrics, log)

	handle := analyzer.NewHandle(analyzer.NewLocal())
	processor := crucible.New(st, handle, log)

	// trigger hands the ingest loop a way to kick off reconciliation
	// against every configured peer without it needing to know anything
	// about peer addressing (spec section 4.6).
	trigger := func(ctx context.Context) {
		for _, peer := range cfg.SyncPeers {
			if err := syncer.SyncWithPeer(ctx, peer); err != nil {
				log.Warn().Err(err).Str("peer", peer).Msg("sync pass failed")
			}
		}
	}

	ingestor := ingest.New(st, processor, nil, cfg.Difficulty, cfg.IngestInterval, trigger, metrics, log)

	verifySrv := &http.Server{
		Addr:    cfg.VerifyAddr,
		Handler: verifyapi.New(st, log).Router(),
	}

	metricSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	return &node{
		store:     st,
		transport: transport,
		syncer:    syncer,
		ingestor:  ingestor,
		verifySrv: verifySrv,
		metricSrv: metricSrv,
	}, nil
}

// localTip reports the chain tip, or nil if the chain is empty.
func localTip(ctx context.Context, st *store.Store) (*ledger.Block, error) {
	b, err := store.LatestBlock(ctx, st.DB())
	if err != nil {
		if errors.Is(err, axiomerr.ErrBlockNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func loadOrGenerateIdentity(path string, log zerolog.Logger) (*keystore.KeyStore, error) {
	if _, err := os.Stat(path); err == nil {
		ks, err := keystore.LoadPrivateFile(path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("loaded signing identity")
		return ks, nil
	}
	ks, err := keystore.Generate()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, ks.PrivatePEM(), 0o600); err != nil {
		return nil, fmt.Errorf("persist generated signing key: %w", err)
	}
	log.Info().Str("path", path).Msg("generated new signing identity")
	return ks, nil
}

func (n *node) run(ctx context.Context, cfg config.Config, log zerolog.Logger) {
	var wg stdsync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		onMessage := func(l *p2p.Link, msg *p2p.Message) {
			log.Debug().Str("peer", l.Address()).Str("type", string(msg.Type)).Msg("unhandled p2p application message")
		}
		if err := n.transport.Run(ctx, onMessage); err != nil {
			log.Error().Err(err).Msg("p2p transport exited")
		}
	}()

	if cfg.BootstrapPeer != "" {
		go func() {
			dialCtx, cancel := context.WithTimeout(ctx, p2p.DialTimeout)
			defer cancel()
			onMessage := func(l *p2p.Link, msg *p2p.Message) {}
			if err := n.transport.RequestPeers(dialCtx, cfg.BootstrapPeer, onMessage); err != nil {
				log.Warn().Err(err).Str("bootstrap", cfg.BootstrapPeer).Msg("bootstrap discovery failed")
			}
		}()
	}

	n.ingestor.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.verifySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("verification api server exited")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.metricSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	n.ingestor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.verifySrv.Shutdown(shutdownCtx)
	n.metricSrv.Shutdown(shutdownCtx)
	n.transport.Close()
	n.store.Close()

	wg.Wait()
	log.Info().Msg("shutdown complete")
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "axiomd: %v\n", err)
		os.Exit(1)
	}

	log := telemetry.NewLogger(telemetry.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	n, err := buildNode(cfg, log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("node initialization failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n.run(ctx, cfg, log)
}
