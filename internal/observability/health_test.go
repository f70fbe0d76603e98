package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" || status.Service != ServiceName {
		t.Errorf("Expected healthy %s, got %s %s", ServiceName, status.Status, status.Service)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := NamedCheck{Name: "controller", Check: func(context.Context) (bool, error) { return true, nil }}
	broken := NamedCheck{Name: "token_issuer", Check: func(context.Context) (bool, error) {
		return false, errors.New("circuit breaker is open")
	}}

	tests := []struct {
		name     string
		checks   []NamedCheck
		wantCode int
		wantBody string
	}{
		{"all healthy", []NamedCheck{ok}, http.StatusOK, "ready"},
		{"one failing", []NamedCheck{ok, broken}, http.StatusServiceUnavailable, "not_ready"},
		{"no checks", nil, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks...)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rec.Code)
			}
			var status HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if status.Status != tt.wantBody {
				t.Errorf("Expected status %q, got %q", tt.wantBody, status.Status)
			}
			if len(status.Dependencies) != len(tt.checks) {
				t.Errorf("Expected %d dependencies, got %d", len(tt.checks), len(status.Dependencies))
			}
		})
	}
}

func TestRunChecksReportsMessage(t *testing.T) {
	deps, healthy := RunChecks(context.Background(), []NamedCheck{{
		Name:  "token_issuer",
		Check: func(context.Context) (bool, error) { return false, errors.New("circuit breaker is open") },
	}})
	if healthy {
		t.Error("Expected unhealthy result")
	}
	if deps["token_issuer"].Message != "circuit breaker is open" {
		t.Errorf("Expected failure message, got %q", deps["token_issuer"].Message)
	}
}
