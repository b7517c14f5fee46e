package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	name    string
	status  string
	message string
}

func (c stubChecker) Name() string                  { return c.name }
func (c stubChecker) CheckReady() (string, string) { return c.status, c.message }

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler()
	w := httptest.NewRecorder()
	h.HealthLive(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", w.Code)
	}
	var resp healthLiveResponse
	decode(t, w, &resp)
	if resp.Status != "ok" || resp.Service != serviceName {
		t.Errorf("Неожиданный ответ: %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []ReadinessChecker
		wantCode   int
		wantStatus string
	}{
		{"без проверок", nil, http.StatusOK, "ok"},
		{
			"все ok",
			[]ReadinessChecker{stubChecker{name: "postgresql", status: "ok"}},
			http.StatusOK, "ok",
		},
		{
			"degraded",
			[]ReadinessChecker{
				stubChecker{name: "postgresql", status: "ok"},
				stubChecker{name: "dependencies", status: "degraded", message: "недоступны: idp-jwks"},
			},
			http.StatusOK, "degraded",
		},
		{
			"fail",
			[]ReadinessChecker{
				stubChecker{name: "postgresql", status: "fail", message: "connection refused"},
				stubChecker{name: "dependencies", status: "degraded"},
			},
			http.StatusServiceUnavailable, "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checkers...)
			w := httptest.NewRecorder()
			h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("Ожидался %d, получен %d", tt.wantCode, w.Code)
			}
			var resp healthReadyResponse
			decode(t, w, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("Ожидался статус %s, получен %s", tt.wantStatus, resp.Status)
			}
			if len(resp.Checks) != len(tt.checkers) {
				t.Errorf("Ожидалось %d проверок, получено %d", len(tt.checkers), len(resp.Checks))
			}
		})
	}
}

func TestGetMetrics(t *testing.T) {
	h := NewHealthHandler()
	w := httptest.NewRecorder()
	h.GetMetrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", w.Code)
	}
}
