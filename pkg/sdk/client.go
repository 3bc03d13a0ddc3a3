// Package sdk is a Go client for the annex HTTP API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client is the annex SDK entry point.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the Client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates an annex Client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("annex: base URL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("annex: invalid base URL: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CollectionConfig mirrors the server-side collection parameters. Zero
// fields fall back to server defaults.
type CollectionConfig struct {
	Distance      string `json:"distance,omitempty"`
	MaxNeighbors  int    `json:"max_neighbors_per_node,omitempty"`
	SearchBreadth int    `json:"search_breadth,omitempty"`
	MaxElements   int    `json:"max_elements,omitempty"`
}

// CollectionInfo describes a collection as reported by the server.
type CollectionInfo struct {
	Name   string           `json:"name"`
	Dim    int              `json:"dim"`
	Config CollectionConfig `json:"config"`
	Count  int              `json:"count"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// UnmarshalJSON decodes the wire form [id, distance].
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var pair [2]json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	id, err := pair[0].Int64()
	if err != nil {
		return fmt.Errorf("annex: invalid result id: %w", err)
	}
	dist, err := pair[1].Float64()
	if err != nil {
		return fmt.Errorf("annex: invalid result distance: %w", err)
	}
	r.ID = uint64(id)
	r.Distance = float32(dist)
	return nil
}

// CreateCollection creates a new collection.
func (c *Client) CreateCollection(ctx context.Context, name string, dim int, cfg CollectionConfig) (CollectionInfo, error) {
	body := map[string]any{"name": name, "dim": dim, "config": cfg}
	var info CollectionInfo
	err := c.do(ctx, http.MethodPost, "/collections", body, &info)
	return info, err
}

// ListCollections returns the names of all collections, sorted.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := c.do(ctx, http.MethodGet, "/collections", nil, &names)
	return names, err
}

// DeleteCollection removes a collection and all its vectors.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil)
}

// Upsert inserts or replaces vectors by id. Payloads may be nil.
func (c *Client) Upsert(ctx context.Context, collection string, ids []uint64, vectors [][]float32, payloads []json.RawMessage) (int, error) {
	body := map[string]any{"ids": ids, "vectors": vectors}
	if payloads != nil {
		body["payloads"] = payloads
	}
	var resp struct {
		Upserted int `json:"upserted"`
	}
	err := c.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/upsert", body, &resp)
	return resp.Upserted, err
}

// UpsertText embeds texts server-side and upserts the resulting vectors.
func (c *Client) UpsertText(ctx context.Context, collection string, ids []uint64, texts []string, payloads []json.RawMessage) (int, error) {
	body := map[string]any{"ids": ids, "texts": texts}
	if payloads != nil {
		body["payloads"] = payloads
	}
	var resp struct {
		Upserted int `json:"upserted"`
	}
	err := c.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/upsert-text", body, &resp)
	return resp.Upserted, err
}

// SearchOptions tunes a single search request.
type SearchOptions struct {
	// EF overrides the collection's search breadth; zero keeps the default.
	EF int
}

// Search returns the topK nearest neighbors of query, closest first.
func (c *Client) Search(ctx context.Context, collection string, query []float32, topK int, opts *SearchOptions) ([]SearchResult, error) {
	body := map[string]any{"query": query, "top_k": topK}
	if opts != nil && opts.EF > 0 {
		body["ef"] = opts.EF
	}
	var results []SearchResult
	err := c.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/search", body, &results)
	return results, err
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("annex: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("annex: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("annex: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("annex: decode response: %w", err)
	}
	return nil
}
