package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to a Pinecone serverless index over its REST API.
type Client interface {
	DescribeIndex(ctx context.Context) (*IndexDescription, error)
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	DeleteByFilter(ctx context.Context, filter map[string]any) error
}

// Config defines connection options for the Pinecone client.
type Config struct {
	APIKey     string
	IndexName  string
	IndexHost  string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
	Logger     zerolog.Logger
}

type client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// New builds a Pinecone client. The index host may be left empty and
// resolved later through DescribeIndex.
func New(cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("pinecone api key is required")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("pinecone index name is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2025-01"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger.With().Str("component", "pinecone").Logger(),
	}, nil
}

// IndexDescription is the control plane view of an index.
type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// Vector is a single embedded chunk with its metadata.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryRequest asks the index for the nearest vectors.
type QueryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

// QueryMatch is one retrieved vector.
type QueryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResponse carries the retrieved matches.
type QueryResponse struct {
	Matches []QueryMatch `json:"matches"`
}

func (c *client) DescribeIndex(ctx context.Context) (*IndexDescription, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/indexes/" + c.cfg.IndexName

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone describe_index: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinecone describe_index http %d: %s", resp.StatusCode, string(raw))
	}

	var out IndexDescription
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone describe_index decode: %w", err)
	}
	if strings.TrimSpace(out.Host) == "" {
		return nil, fmt.Errorf("pinecone describe_index returned empty host")
	}

	return &out, nil
}

func (c *client) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	host, err := c.host(ctx)
	if err != nil {
		return err
	}

	payload := struct {
		Vectors []Vector `json:"vectors"`
	}{Vectors: vectors}

	var out struct {
		UpsertedCount int64 `json:"upsertedCount"`
	}
	if err := c.doJSON(ctx, "https://"+host+"/vectors/upsert", payload, &out); err != nil {
		return err
	}

	c.logger.Debug().Int64("upserted", out.UpsertedCount).Msg("vectors upserted")
	return nil
}

func (c *client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	host, err := c.host(ctx)
	if err != nil {
		return nil, err
	}

	var out QueryResponse
	if err := c.doJSON(ctx, "https://"+host+"/query", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("delete filter is required")
	}

	host, err := c.host(ctx)
	if err != nil {
		return err
	}

	payload := struct {
		Filter map[string]any `json:"filter"`
	}{Filter: filter}

	var out struct{}
	return c.doJSON(ctx, "https://"+host+"/vectors/delete", payload, &out)
}

// host returns the configured data plane host, resolving it through the
// control plane on first use when not configured explicitly.
func (c *client) host(ctx context.Context) (string, error) {
	if c.cfg.IndexHost != "" {
		return c.cfg.IndexHost, nil
	}

	description, err := c.DescribeIndex(ctx)
	if err != nil {
		return "", err
	}

	c.cfg.IndexHost = description.Host
	return c.cfg.IndexHost, nil
}

func (c *client) doJSON(ctx context.Context, url string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pinecone http %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("pinecone decode: %w", err)
	}

	return nil
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)
}
