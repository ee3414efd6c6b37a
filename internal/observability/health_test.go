package observability_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"BreachLedger/internal/observability"
)

// ============================================================================
// Test: Readiness
// ============================================================================

func TestHealthChecker_ReadyOnlyWhenAllComponentsUp(t *testing.T) {
	hc := observability.NewHealthChecker("postgres", "nats", "recovery")

	if hc.IsReady() {
		t.Error("fresh checker must not be ready")
	}

	hc.SetComponentReady("postgres", true)
	hc.SetComponentReady("nats", true)
	if hc.IsReady() {
		t.Error("one component down must keep the service not ready")
	}

	hc.SetComponentReady("recovery", true)
	if !hc.IsReady() {
		t.Error("all components up, expected ready")
	}

	hc.SetComponentReady("nats", false)
	if hc.IsReady() {
		t.Error("a component going down must drop readiness")
	}
}

func TestHealthChecker_ReadinessHandlerReportsComponents(t *testing.T) {
	hc := observability.NewHealthChecker("postgres", "nats")
	hc.SetComponentReady("postgres", true)

	rec := httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "not_ready" {
		t.Errorf("status field: got %s, want not_ready", body.Status)
	}
	if !body.Components["postgres"] || body.Components["nats"] {
		t.Errorf("components: %+v", body.Components)
	}

	hc.SetComponentReady("nats", true)
	rec = httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status after all up: got %d, want 200", rec.Code)
	}
}
