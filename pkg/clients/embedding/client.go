package embedding

import (
	"time"

	"github.com/foliumapp/ragcore/internal/config"
	"github.com/foliumapp/ragcore/pkg/clients/base"
)

const (
	DefaultTimeout = 30 * time.Second
	ServiceName    = "embedding"
)

// Embedder matches what pkg/embed.ClientProvider actually calls:
// CreateEmbeddingWithDefaults for a single-text fetch, CreateEmbedding for
// the underlying raw request it builds.
type Embedder interface {
	CreateEmbedding(req Request) (*Response, error)
	CreateEmbeddingWithDefaults(model, text string) (*Response, error)
}

type Client struct {
	httpClient *base.HTTPClient
	config     config.ServiceConfig
}

var _ Embedder = (*Client)(nil)

func NewClient(cfg config.ServiceConfig) *Client {
	httpClient := base.NewHTTPClient(ServiceName, cfg, DefaultTimeout)
	return &Client{httpClient: httpClient, config: cfg}
}

type Request struct {
	Model          string      `json:"model"`
	Input          interface{} `json:"input"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
	Dimensions     int         `json:"dimensions,omitempty"`
}
type Data struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
type Response struct {
	Object string `json:"object"`
	Model  string `json:"model"`
	Data   []Data `json:"data"`
	Usage  Usage  `json:"usage"`
}

func (c *Client) CreateEmbedding(req Request) (*Response, error) {
	var result Response
	if err := c.httpClient.Post("/embeddings", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateEmbeddingWithDefaults builds the single-text request pkg/embed's
// provider adapter issues on every cache miss.
func (c *Client) CreateEmbeddingWithDefaults(model, text string) (*Response, error) {
	req := Request{Model: model, Input: text, EncodingFormat: "float"}
	return c.CreateEmbedding(req)
}
