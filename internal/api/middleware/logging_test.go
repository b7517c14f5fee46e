package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("body"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil))

		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("статус %d: ожидался %s в %q", tt.status, tt.level, out)
		}
		if !strings.Contains(out, "bytes=4") || !strings.Contains(out, "path=/api/v1/submissions") {
			t.Errorf("статус %d: нет атрибутов запроса в %q", tt.status, out)
		}
	}
}

func TestRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Get("/api/v1/submissions/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = routePattern(r)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/submissions/abc", nil))
	if got != "/api/v1/submissions/{id}" {
		t.Errorf("routePattern = %q", got)
	}

	plain := httptest.NewRequest(http.MethodGet, "/x", nil)
	if p := routePattern(plain); p != "unmatched" {
		t.Errorf("routePattern без chi = %q, ожидался unmatched", p)
	}
}
