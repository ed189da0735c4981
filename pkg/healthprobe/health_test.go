package healthprobe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	hc := New()

	if hc == nil {
		t.Fatal("New() returned nil")
	}
	if time.Since(hc.startTime) > 1*time.Second {
		t.Errorf("Start time is too old: %v", hc.startTime)
	}
	if hc.ready.Load() {
		t.Error("HealthChecker should not be ready by default")
	}
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	hc := New()

	tests := []struct {
		name     string
		setReady bool
	}{
		{name: "not-ready", setReady: false},
		{name: "ready", setReady: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc.SetReady(tt.setReady)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			hc.Health()(w, req)

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("Health handler status = %d, want %d (ready=%v)", resp.StatusCode, http.StatusOK, tt.setReady)
			}

			var health HealthResponse
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				t.Fatalf("Failed to decode health response: %v", err)
			}
			if health.Status != "healthy" {
				t.Errorf("Status = %q, want healthy", health.Status)
			}
			if health.Uptime == "" {
				t.Error("Uptime is empty")
			}
		})
	}
}

func TestReady_FollowsSetReady(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		return w
	}

	// Not ready until the process wiring says so.
	if w := serve(); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Initial ready status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	hc.SetReady(true)
	w := serve()
	if w.Code != http.StatusOK {
		t.Errorf("Ready status after SetReady(true) = %d, want %d", w.Code, http.StatusOK)
	}
	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode ready response: %v", err)
	}
	if health.Status != "ready" {
		t.Errorf("Status = %q, want ready", health.Status)
	}

	// Shutdown flips it back.
	hc.SetReady(false)
	if w := serve(); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Ready status after SetReady(false) = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			hc.SetReady(i%2 == 0)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()
			handler(w, req)
		}
		done <- true
	}()

	<-done
	<-done
}

func TestNewServer(t *testing.T) {
	checker := New()
	logger := zap.NewNop()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "valid-config",
			cfg:  &Config{Port: 8081, Checker: checker, Logger: logger},
		},
		{
			name:    "nil-config",
			cfg:     nil,
			wantErr: "config cannot be nil",
		},
		{
			name:    "nil-logger",
			cfg:     &Config{Port: 8081, Checker: checker},
			wantErr: "logger cannot be nil",
		},
		{
			name:    "nil-checker",
			cfg:     &Config{Port: 8081, Logger: logger},
			wantErr: "health checker cannot be nil",
		},
		{
			name:    "negative-port",
			cfg:     &Config{Port: -1, Checker: checker, Logger: logger},
			wantErr: "port must be between 0 and 65535",
		},
		{
			name:    "port-too-large",
			cfg:     &Config{Port: 70000, Checker: checker, Logger: logger},
			wantErr: "port must be between 0 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Errorf("NewServer() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewServer() error = %v", err)
			}
			if server == nil || server.server == nil {
				t.Fatal("NewServer() returned incomplete server")
			}
			if server.server.Addr != ":8081" {
				t.Errorf("Addr = %q, want %q", server.server.Addr, ":8081")
			}
		})
	}
}

func TestServer_Routes(t *testing.T) {
	checker := New()
	server, err := NewServer(&Config{Port: 0, Checker: checker, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	serve := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		server.server.Handler.ServeHTTP(w, req)
		return w
	}

	if w := serve("/health"); w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serve("/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready status before SetReady = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	checker.SetReady(true)
	if w := serve("/ready"); w.Code != http.StatusOK {
		t.Errorf("/ready status after SetReady = %d, want %d", w.Code, http.StatusOK)
	}

	w := serve("/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	if len(body) == 0 {
		t.Error("Metrics endpoint returned empty body")
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	server, err := NewServer(&Config{Port: 0, Checker: New(), Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Errorf("Start() returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after shutdown")
	}
}
