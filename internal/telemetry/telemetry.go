// Package telemetry builds the node's structured logger and Prometheus
// metric registry, the ambient observability stack every worker package
// is handed at construction time rather than reaching for a global.
// Grounded on DanDo385-go-edu's minis/50-mini-service-all-features
// internal/middleware/metrics.go (Prometheus vector shapes) and its
// logger construction convention.
package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "console"
}

// NewLogger builds a zerolog.Logger writing to stdout, in either ndjson
// ("json", the production default) or a human-readable console form
// ("console", convenient for local runs).
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Metrics is the node's Prometheus collector set, covering the transport,
// sync, and ingestion workers (spec section 4.4/4.5 ambient additions).
type Metrics struct {
	FramesTotal       *prometheus.CounterVec
	PeersConnected    prometheus.Gauge
	PeerReputation    *prometheus.GaugeVec
	BlocksSealed      prometheus.Counter
	FactsAccepted     prometheus.Counter
	ChainHeight       prometheus.Gauge
	SyncFailuresTotal *prometheus.CounterVec
}

// NewMetrics registers every collector against reg and returns the handle
// workers use to record observations.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axiom",
			Subsystem: "p2p",
			Name:      "frames_total",
			Help:      "Peer transport frames processed, by direction and message type.",
		}, []string{"direction", "type"}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axiom",
			Subsystem: "p2p",
			Name:      "peers_connected",
			Help:      "Currently handshaked peer links.",
		}),
		PeerReputation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "axiom",
			Subsystem: "sync",
			Name:      "peer_reputation",
			Help:      "Current in-memory reputation score per peer address, in [0,1].",
		}, []string{"peer"}),
		BlocksSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "axiom",
			Subsystem: "blockengine",
			Name:      "blocks_sealed_total",
			Help:      "Blocks successfully sealed by this node.",
		}),
		FactsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "axiom",
			Subsystem: "crucible",
			Name:      "facts_accepted_total",
			Help:      "New facts persisted by the extraction pipeline.",
		}),
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axiom",
			Subsystem: "ledger",
			Name:      "chain_height",
			Help:      "Local chain tip height.",
		}),
		SyncFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axiom",
			Subsystem: "sync",
			Name:      "failures_total",
			Help:      "Sync attempts that were aborted, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.FramesTotal, m.PeersConnected, m.PeerReputation,
		m.BlocksSealed, m.FactsAccepted, m.ChainHeight, m.SyncFailuresTotal,
	)
	return m
}
