// Package verifyapi implements the two endpoints a listener node depends
// on (spec section 4.7): serve headers/blocks since a height, and serve a
// Merkle inclusion proof for (fact hash, block height). It also answers
// fact-body lookups for internal/sync's peer reconciliation, and carries
// the supplemental /healthz and /zeitgeist endpoints (SPEC_FULL.md
// section 9).
//
// Grounded on the other_examples leanlp-BTC-coinjoin manifest (the pack's
// one real gin-gonic/gin dependency next to a ledger/blockchain core) and
// DanDo385-go-edu's minis/50-mini-service-all-features handlers package
// for the constructor-returns-handler, structured-log-on-error style,
// translated from net/http.HandlerFunc to gin.HandlerFunc.
package verifyapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axiom-network/axiomd/internal/apiwire"
	"github.com/axiom-network/axiomd/internal/hasher"
	"github.com/axiom-network/axiomd/internal/store"
)

// requestIDHeader is the header a caller can supply to correlate a
// request across logs; one is generated when absent, following
// certenIO-certen-validator's per-request uuid.New() convention.
const requestIDHeader = "X-Request-Id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Server wires the verification API's route handlers to a store.
type Server struct {
	store *store.Store
	log   zerolog.Logger
}

func New(st *store.Store, log zerolog.Logger) *Server {
	return &Server{store: st, log: log.With().Str("component", "verifyapi").Logger()}
}

// Router builds the gin.Engine exposing every route. Callers run it
// themselves (http.Server{Handler: srv.Router()}) so they control
// listen address and graceful shutdown.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.GET("/healthz", s.healthz)
	r.GET("/chain_height", s.chainHeight)
	r.GET("/blocks", s.blocksSince)
	r.POST("/facts_by_hash", s.factsByHash)
	r.GET("/merkle_proof", s.merkleProof)
	r.GET("/zeitgeist", s.zeitgeist)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) chainHeight(c *gin.Context) {
	height, err := store.ChainHeight(c.Request.Context(), s.store.DB())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "read chain height", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"height": height})
}

// blocksSince serves every block with height > since, the catch-up
// fetch internal/sync's client calls (spec section 4.5/4.7).
func (s *Server) blocksSince(c *gin.Context) {
	since, err := parseSince(c.Query("since"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "parse since", err)
		return
	}
	blocks, err := store.BlocksSince(c.Request.Context(), s.store.DB(), since)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "query blocks since", err)
		return
	}
	wire := make([]apiwire.Block, len(blocks))
	for i, b := range blocks {
		wire[i] = apiwire.FromLedgerBlock(b)
	}
	c.JSON(http.StatusOK, gin.H{"blocks": wire})
}

type factsByHashRequest struct {
	FactHashes []string `json:"fact_hashes"`
}

// factsByHash serves the fact bodies a peer is missing after adopting new
// block headers (spec section 4.5 step 6).
func (s *Server) factsByHash(c *gin.Context) {
	var req factsByHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "decode request", err)
		return
	}
	known, err := store.FactsByHashes(c.Request.Context(), s.store.DB(), req.FactHashes)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "query facts by hash", err)
		return
	}
	wire := make([]apiwire.Fact, 0, len(known))
	for _, h := range req.FactHashes {
		if f, ok := known[h]; ok {
			wire = append(wire, apiwire.FromLedgerFact(f))
		}
	}
	c.JSON(http.StatusOK, gin.H{"facts": wire})
}

func (s *Server) merkleProof(c *gin.Context) {
	factHash := c.Query("fact_hash")
	height, err := parseSince(c.Query("block_height"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "parse block_height", err)
		return
	}

	block, err := store.BlockByHeight(c.Request.Context(), s.store.DB(), height)
	if err != nil {
		s.fail(c, http.StatusNotFound, "find block", err)
		return
	}

	leaves, err := block.MerkleLeaves()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "decode merkle leaves", err)
		return
	}
	index := block.IndexOfFactHash(factHash)
	if index < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "fact hash not in block"})
		return
	}

	steps := hasher.MerkleProof(leaves, index)
	c.JSON(http.StatusOK, apiwire.MerkleProofResponse{
		BlockHeight: block.Height,
		MerkleRoot:  block.MerkleRootHex,
		LeafHash:    factHash,
		Proof:       apiwire.FromProofSteps(steps),
	})
}

// zeitgeist is the supplemental trending-entities report (SPEC_FULL.md
// section 9): top named entities across facts sealed since a height.
func (s *Server) zeitgeist(c *gin.Context) {
	since, err := parseSince(c.DefaultQuery("since", "-1"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "parse since", err)
		return
	}
	top, err := store.TopEntities(c.Request.Context(), s.store.DB(), since, 20)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "query top entities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": top})
}

func (s *Server) fail(c *gin.Context, status int, action string, err error) {
	s.log.Warn().Err(err).Str("action", action).Str("request_id", c.GetString("request_id")).Msg("verify api request failed")
	c.JSON(status, gin.H{"error": action})
}

func parseSince(raw string) (int64, error) {
	if raw == "" {
		return -1, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
