// Command axiom-listener runs the lightweight listener node of spec
// section 4.6: it holds no Store and runs no Crucible, trusting a single
// sealer's Verification API for headers, and verifies fact inclusion
// against those headers' Merkle roots rather than the sealer's say-so.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axiom-network/axiomd/internal/blockengine"
	"github.com/axiom-network/axiomd/internal/listener"
	"github.com/axiom-network/axiomd/internal/telemetry"
)

func main() {
	sealerURL := flag.String("sealer", "", "base URL of the trusted sealer's verification API, e.g. http://10.0.0.1:8080")
	difficulty := flag.Int("difficulty", blockengine.DefaultDifficulty, "proof-of-work difficulty the sealer's non-genesis blocks must satisfy")
	pollInterval := flag.Duration("poll-interval", 30*time.Second, "how often to poll the sealer for new headers")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "console", "log format: json or console")
	checkFactHash := flag.String("check-fact", "", "if set, verify this fact hash's inclusion once and exit")
	checkBlockHeight := flag.Int64("check-height", -1, "block height the -check-fact hash is claimed to belong to")
	flag.Parse()

	if *sealerURL == "" {
		fmt.Fprintln(os.Stderr, "axiom-listener: -sealer is required")
		os.Exit(1)
	}

	log := telemetry.NewLogger(telemetry.LogConfig{Level: *logLevel, Format: *logFormat})
	l := listener.New(*sealerURL, *difficulty, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := l.SyncHeaders(ctx); err != nil {
		log.Fatal().Err(err).Msg("initial header sync failed")
	}
	log.Info().Int64("height", l.Height()).Msg("synced to sealer")

	if *checkFactHash != "" {
		if *checkBlockHeight < 0 {
			fmt.Fprintln(os.Stderr, "axiom-listener: -check-height is required alongside -check-fact")
			os.Exit(1)
		}
		included, err := l.VerifyFactInclusion(ctx, *checkFactHash, *checkBlockHeight)
		if err != nil {
			log.Fatal().Err(err).Str("fact_hash", *checkFactHash).Msg("fact inclusion check failed")
		}
		if !included {
			log.Error().Str("fact_hash", *checkFactHash).Msg("fact inclusion proof did not verify")
			os.Exit(1)
		}
		log.Info().Str("fact_hash", *checkFactHash).Int64("height", *checkBlockHeight).Msg("fact inclusion verified")
		return
	}

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			if err := l.SyncHeaders(ctx); err != nil {
				log.Warn().Err(err).Msg("header sync failed")
				continue
			}
			log.Debug().Int64("height", l.Height()).Msg("headers up to date")
		}
	}
}
