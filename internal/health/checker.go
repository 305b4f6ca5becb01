package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Probe performs a single health check against one service. It must return
// promptly once ctx is cancelled. A nil error means the service is healthy.
type Probe func(ctx context.Context) error

// Checker builds probes for the transports the monitored services expose.
type Checker struct {
	client *http.Client
	dialer *websocket.Dialer
}

// NewChecker returns a Checker whose per-probe deadline is timeout.
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		client: &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// HTTPProbe probes url with a GET and treats any 2xx status as healthy.
func (c *Checker) HTTPProbe(url string) Probe {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RPCProbe probes a JSON-RPC endpoint by calling method and requiring a
// non-error response. Solana-style nodes answer getHealth with "ok".
func (c *Checker) RPCProbe(url, method string) Probe {
	return func(ctx context.Context) error {
		body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		var out rpcResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if out.Error != nil {
			return fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
		}
		return nil
	}
}

// WSProbe probes url by completing a websocket handshake and closing the
// connection.
func (c *Checker) WSProbe(url string) Probe {
	return func(ctx context.Context) error {
		conn, resp, err := c.dialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			defer func() { _ = resp.Body.Close() }()
		}
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// CheckHTTP performs one HTTP GET probe and classifies the outcome. Probe
// failures are reported through CheckResult, never as a Go error.
func (c *Checker) CheckHTTP(ctx context.Context, service, url string) CheckResult {
	return Run(ctx, service, c.client.Timeout, c.HTTPProbe(url))
}

// CheckRPC performs one JSON-RPC getHealth probe and classifies the outcome.
func (c *Checker) CheckRPC(ctx context.Context, service, url string) CheckResult {
	return Run(ctx, service, c.client.Timeout, c.RPCProbe(url, "getHealth"))
}

// CheckWS performs one websocket handshake probe and classifies the outcome.
func (c *Checker) CheckWS(ctx context.Context, service, url string) CheckResult {
	return Run(ctx, service, c.client.Timeout, c.WSProbe(url))
}

// Run executes probe once and converts the outcome into a CheckResult.
func Run(ctx context.Context, service string, timeout time.Duration, probe Probe) CheckResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	err := probe(cctx)
	res := CheckResult{
		Service:   service,
		CheckedAt: start,
		Latency:   time.Since(start),
	}
	switch {
	case err == nil:
		res.Healthy = true
	case cctx.Err() == context.DeadlineExceeded:
		res.Reason = fmt.Sprintf("timed out after %s", timeout)
	default:
		res.Reason = err.Error()
	}
	return res
}

// WaitHealthy polls probe every interval until it succeeds or ctx expires.
// Each attempt gets its own timeout deadline.
func WaitHealthy(ctx context.Context, service string, probe Probe, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res := Run(ctx, service, timeout, probe)
		if res.Healthy {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
