package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/axiom-network/axiomd/internal/apiwire"
)

// httpTimeout bounds a single verification-API request, per spec section
// 5's "per-peer HTTP-style queries for sync have bounded read timeouts
// (default 10-30s)".
const httpTimeout = 15 * time.Second

type peerClient struct {
	baseURL string
	http    *http.Client
}

func newPeerClient(baseURL string) *peerClient {
	return &peerClient{baseURL: baseURL, http: &http.Client{Timeout: httpTimeout}}
}

type chainHeightResponse struct {
	Height int64 `json:"height"`
}

func (c *peerClient) chainHeight(ctx context.Context) (int64, error) {
	var resp chainHeightResponse
	if err := c.getJSON(ctx, "/chain_height", &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

type blocksResponse struct {
	Blocks []apiwire.Block `json:"blocks"`
}

func (c *peerClient) blocksSince(ctx context.Context, since int64) ([]apiwire.Block, error) {
	path := "/blocks?since=" + strconv.FormatInt(since, 10)
	var resp blocksResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

type factsByHashRequest struct {
	FactHashes []string `json:"fact_hashes"`
}

type factsByHashResponse struct {
	Facts []apiwire.Fact `json:"facts"`
}

func (c *peerClient) factsByHash(ctx context.Context, hashes []string) ([]apiwire.Fact, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	var resp factsByHashResponse
	if err := c.postJSON(ctx, "/facts_by_hash", factsByHashRequest{FactHashes: hashes}, &resp); err != nil {
		return nil, err
	}
	return resp.Facts, nil
}

func (c *peerClient) getJSON(ctx context.Context, path string, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid peer url %s%s: %w", c.baseURL, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *peerClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *peerClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
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
