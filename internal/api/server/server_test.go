package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/remiblancher/sigcore/internal/api/dto"
	"github.com/remiblancher/sigcore/internal/api/router"
)

// =============================================================================
// [Unit] Config Tests
// =============================================================================

func TestU_Config_Address(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9000
	if got := cfg.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address() = %s, want 127.0.0.1:9000", got)
	}
}

func TestU_Config_TLSEnabled(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TLSEnabled() {
		t.Error("TLS should be disabled by default")
	}
	cfg.TLSCert = "cert.pem"
	if cfg.TLSEnabled() {
		t.Error("TLS requires both certificate and key")
	}
	cfg.TLSKey = "key.pem"
	if !cfg.TLSEnabled() {
		t.Error("TLS should be enabled")
	}
}

// =============================================================================
// [Unit] Serve Tests
// =============================================================================

func TestU_Server_ServeAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 4
	cfg.ShutdownTimeout = 5 * time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	s := New(cfg, &router.Config{Version: "1.2.3"})
	s.out = io.Discard

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		cancel()
		t.Fatalf("GET /health error = %v", err)
	}
	var health dto.HealthResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if decodeErr != nil {
		cancel()
		t.Fatalf("Decode() error = %v", decodeErr)
	}
	if health.Version != "1.2.3" {
		t.Errorf("Expected version 1.2.3, got %s", health.Version)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestU_Server_BodyLimitFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 32

	rc := &router.Config{}
	New(cfg, rc)
	if rc.MaxBodyBytes != 32 {
		t.Errorf("Expected router body limit 32, got %d", rc.MaxBodyBytes)
	}
}
