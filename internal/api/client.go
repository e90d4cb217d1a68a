package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	jsonContentType = "application/json"

	// Bodies larger than this are treated as malformed.
	maxBodySize = 10 << 20

	// Non-2xx bodies are drained up to this size so the connection can be reused.
	drainLimit = 1024
)

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveFetch(endpoint string, elapsed time.Duration, err error)
}

// Client reads from the remote users API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	collapse   bool
	group      singleflight.Group
	observer   Observer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCollapsing makes concurrent identical GETs share a single upstream call.
func WithCollapsing(enabled bool) Option {
	return func(c *Client) {
		c.collapse = enabled
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient returns a client whose requests all target baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches GET {base}/api/v1/health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, HealthPath, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Users fetches GET {base}/api/v1/users. A missing or null users field
// yields an empty, non-nil slice.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp usersResponse
	if err := c.get(ctx, UsersPath, &resp); err != nil {
		return nil, err
	}
	if resp.Users == nil {
		return []User{}, nil
	}
	return resp.Users, nil
}

func (c *Client) get(ctx context.Context, endpoint string, target any) (err error) {
	start := time.Now()
	if c.observer != nil {
		defer func() {
			c.observer.ObserveFetch(endpoint, time.Since(start), err)
		}()
	}

	var body []byte
	if c.collapse {
		body, err = c.fetchShared(ctx, endpoint)
	} else {
		body, err = c.fetch(ctx, endpoint)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// fetchShared joins an in-flight call for the same endpoint. The shared call
// is detached from the first caller's cancellation; each caller still stops
// waiting when its own context ends.
func (c *Client) fetchShared(ctx context.Context, endpoint string) ([]byte, error) {
	detached := context.WithoutCancel(ctx)
	resultChan := c.group.DoChan(endpoint, func() (interface{}, error) {
		return c.fetch(detached, endpoint)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", jsonContentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if len(body) > maxBodySize {
		return nil, &DecodeError{Endpoint: endpoint, Err: fmt.Errorf("body exceeds %d bytes", maxBodySize)}
	}
	return body, nil
}
