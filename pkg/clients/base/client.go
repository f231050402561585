package base

import (
	"fmt"
	"time"

	"github.com/foliumapp/ragcore/internal/config"
	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 30 * time.Second

type ClientError struct {
	Op         string
	Service    string
	StatusCode int
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client: %s %s failed with status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client: %s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

func NewClientError(service, op string, err error) *ClientError {
	return &ClientError{Op: op, Service: service, Err: err}
}

func NewHTTPError(service, op string, statusCode int, body string) *ClientError {
	return &ClientError{Op: op, Service: service, StatusCode: statusCode, Err: fmt.Errorf("HTTP %d: %s", statusCode, body)}
}

type HTTPClient struct {
	client  *resty.Client
	service string
}

func NewHTTPClient(service string, cfg config.ServiceConfig, timeout time.Duration) *HTTPClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	client.AddRetryCondition(func(r *resty.Response, err error) bool { return err != nil || r.StatusCode() >= 500 })

	return &HTTPClient{client: client, service: service}
}

// Post is the only transport operation the embedding and reranker
// providers need: both are single-endpoint POST JSON APIs, so the client
// carries no GET/PUT surface to keep idle.
func (h *HTTPClient) Post(endpoint string, body interface{}, result interface{}) error {
	resp, err := h.client.R().SetBody(body).SetResult(result).Post(endpoint)
	if err != nil {
		return NewClientError(h.service, "POST "+endpoint, err)
	}
	if resp.StatusCode() != 200 {
		return NewHTTPError(h.service, "POST "+endpoint, resp.StatusCode(), resp.String())
	}
	return nil
}
