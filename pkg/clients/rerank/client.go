package rerank

import (
	"time"

	"github.com/foliumapp/ragcore/internal/config"
	"github.com/foliumapp/ragcore/pkg/clients/base"
)

const (
	DefaultTimeout = 30 * time.Second
	ServiceName    = "rerank"
)

// Reranker scores a query against a set of candidate documents, returning
// a relevance score per document. The retrieval engine uses it as an
// optional pass over the top rerankTopK fused candidates.
type Reranker interface {
	Rerank(query string, documents []string, topN int) (*Response, error)
}

type Client struct {
	httpClient *base.HTTPClient
	config     config.ServiceConfig
}

var _ Reranker = (*Client)(nil)

func NewClient(cfg config.ServiceConfig) *Client {
	httpClient := base.NewHTTPClient(ServiceName, cfg, DefaultTimeout)
	return &Client{httpClient: httpClient, config: cfg}
}

// Request is the reranker provider's wire request.
type Request struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

// Result is a single scored document, identified by its index into the
// request's Documents slice.
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float32 `json:"relevance_score"`
}

// Response is the reranker provider's wire response.
type Response struct {
	Results []Result `json:"results"`
}

// Rerank scores documents against query, returning at most topN results
// sorted by the provider's own ranking (descending relevance).
func (c *Client) Rerank(query string, documents []string, topN int) (*Response, error) {
	req := Request{Model: c.config.Model, Query: query, Documents: documents, TopN: topN}
	var resp Response
	if err := c.httpClient.Post("/rerank", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
