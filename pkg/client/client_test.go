package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/urls", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"agent_url":"http://localhost:9090","sandbox_rpc_url":"http://localhost:8899","sandbox_ws_url":"ws://localhost:8899/ws"}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"initialized":true,"services":{"agent":{"kind":"agent","port":9090,"urls":{"api":"http://localhost:9090"}}},"health":{"agent":{"service":"agent","state":"healthy"}}}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"healthy":false,"services":2,"unhealthy":1}`))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"agent":{"service":"agent","total_checks":10,"successes":9,"failures":1}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestURLs(t *testing.T) {
	c := New(Config{BaseURL: testDaemon(t).URL})
	urls, err := c.URLs(context.Background())
	if err != nil {
		t.Fatalf("urls: %v", err)
	}
	if urls.AgentURL != "http://localhost:9090" {
		t.Fatalf("agent url: %q", urls.AgentURL)
	}
	if urls.SandboxWSURL != "ws://localhost:8899/ws" {
		t.Fatalf("ws url: %q", urls.SandboxWSURL)
	}
}

func TestStatus(t *testing.T) {
	c := New(Config{BaseURL: testDaemon(t).URL})
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Initialized {
		t.Fatalf("expected initialized")
	}
	if st.Services["agent"].Port != 9090 {
		t.Fatalf("agent service: %+v", st.Services["agent"])
	}
	if st.Health["agent"].State != "healthy" {
		t.Fatalf("agent health: %+v", st.Health["agent"])
	}
}

func TestHealthDegradedIsNotAnError(t *testing.T) {
	c := New(Config{BaseURL: testDaemon(t).URL})
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Healthy {
		t.Fatalf("expected degraded")
	}
	if h.Unhealthy != 1 {
		t.Fatalf("unhealthy count: %d", h.Unhealthy)
	}
}

func TestStats(t *testing.T) {
	c := New(Config{BaseURL: testDaemon(t).URL})
	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["agent"].TotalChecks != 10 {
		t.Fatalf("stats: %+v", stats["agent"])
	}
}

func TestUnreachableDaemon(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.URLs(context.Background()); err == nil {
		t.Fatalf("expected connection error")
	}
}
