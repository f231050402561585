// Package redis wraps a rueidis-backed cache client as a narrow, optional
// mirror for the embedding service's disk-tier cache: a process-external
// store multiple engine instances can share, keyed the same way as the
// on-disk cache (embedding:<hash>, SHA-256 hex).
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Client wraps rueidis for the handful of operations the embedding mirror
// needs: a string get/set/delete over binary-safe values.
type Client struct {
	client rueidis.Client
}

// ClientOptions holds connection parameters for the shared cache.
type ClientOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewClient connects to a single Redis node per opts.
func NewClient(opts ClientOptions) (*Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", opts.Host, opts.Port)},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: create client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() { c.client.Close() }

// SetBytes stores value under key with the given expiration (0 disables
// expiry). rueidis strings are binary-safe, so raw little-endian float
// bytes round-trip without encoding.
func (c *Client) SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	var cmd rueidis.Completed
	if expiration > 0 {
		cmd = c.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).ExSeconds(int64(expiration.Seconds())).Build()
	} else {
		cmd = c.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

// GetBytes returns the raw bytes for key, or (nil, false) on miss.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := c.client.B().Get().Key(key).Build()
	result := c.client.Do(ctx, cmd)
	if result.Error() != nil {
		if rueidis.IsRedisNil(result.Error()) {
			return nil, false, nil
		}
		return nil, false, result.Error()
	}
	data, err := result.AsBytes()
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := c.client.B().Del().Key(keys...).Build()
	return c.client.Do(ctx, cmd).Error()
}

func (c *Client) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	return c.client.Do(ctx, cmd).Error()
}
