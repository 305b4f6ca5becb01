package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client provides HTTP client functionality to communicate with a benchrig
// daemon's observability API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:7171",
		Timeout: 10 * time.Second,
	}
}

// New creates a new benchrig API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  config.Logger,
	}
}

// Status fetches the registered services and their last-known health.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// URLs fetches the current dependency URL bundle.
func (c *Client) URLs(ctx context.Context) (*URLBundle, error) {
	var out URLBundle
	if err := c.get(ctx, "/urls", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the all-of health predicate. A degraded daemon answers 503;
// that is reported through the response, not as an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	err := c.get(ctx, "/health", &out)
	if err != nil {
		var se *StatusError
		if !asStatusError(err, &se) || se.Code != http.StatusServiceUnavailable {
			return nil, err
		}
	}
	return &out, nil
}

// Stats fetches per-service probe statistics.
func (c *Client) Stats(ctx context.Context) (map[string]ServiceStats, error) {
	var out map[string]ServiceStats
	if err := c.get(ctx, "/stats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out != nil {
		if derr := json.Unmarshal(body, out); derr != nil && resp.StatusCode == http.StatusOK {
			return fmt.Errorf("decode response from %s: %w", url, derr)
		}
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("non-ok response", "url", url, "status", resp.StatusCode)
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}
