package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/darmiel/satellite/internal/api/presenter"
	"github.com/darmiel/satellite/internal/gate"
	"github.com/darmiel/satellite/internal/ratelimit"
	"github.com/darmiel/satellite/internal/store"
)

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := gate.DecisionFrom(r.Context())
		if !ok || !d.Allowed {
			t.Errorf("handler reached without allowed decision: %+v", d)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestSatelliteAuth(t *testing.T) {
	newGate := func(enabled bool, limit int, allowlist ...string) *gate.Gate {
		return gate.New(gate.Options{
			Enabled:   enabled,
			Secret:    "secret123",
			Allowlist: allowlist,
			Limiter:   ratelimit.NewFixedWindow(store.NewInMemoryStore(), store.NewKeys(""), limit),
		})
	}

	tests := []struct {
		name       string
		gate       *gate.Gate
		key        string
		remote     string
		wantStatus int
		wantCode   string
	}{
		{"disabled", newGate(false, 100), "secret123", "10.0.0.1:1", http.StatusServiceUnavailable, "disabled"},
		{"missing key", newGate(true, 100), "", "10.0.0.1:1", http.StatusUnauthorized, "missing_key"},
		{"invalid key", newGate(true, 100), "wrong", "10.0.0.1:1", http.StatusUnauthorized, "invalid_key"},
		{"ip denied", newGate(true, 100, "192.168.1.0/24"), "secret123", "192.168.2.1:1", http.StatusForbidden, "ip_denied"},
		{"allowed", newGate(true, 100, "192.168.1.0/24"), "secret123", "192.168.1.50:1", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CorrelationIDMiddleware(SatelliteAuth(tt.gate)(okHandler(t)))
			r := httptest.NewRequest(http.MethodGet, "/api/satellite/status", nil)
			r.RemoteAddr = tt.remote
			if tt.key != "" {
				r.Header.Set("Authorization", "Bearer "+tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode == "" {
				return
			}
			var body presenter.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", body.Error, tt.wantCode)
			}
			if body.CorrelationID == "" || body.CorrelationID != rec.Header().Get(CorrelationIDHeader) {
				t.Errorf("correlation id %q does not match header %q", body.CorrelationID, rec.Header().Get(CorrelationIDHeader))
			}
		})
	}
}

func TestSatelliteAuth_RateLimited(t *testing.T) {
	g := gate.New(gate.Options{
		Enabled: true,
		Secret:  "secret123",
		Limiter: ratelimit.NewFixedWindow(store.NewInMemoryStore(), store.NewKeys(""), 2),
	})
	h := SatelliteAuth(g)(okHandler(t))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("X-API-Key", "secret123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		value    string
		wantKept bool
	}{
		{"hub correlation id", CorrelationIDHeader, "abc-123", true},
		{"request id alias", RequestIDHeader, "req_9.1", true},
		{"missing", "", "", false},
		{"too long", CorrelationIDHeader, strings.Repeat("a", 65), false},
		{"control characters", CorrelationIDHeader, "abc\ndef", false},
		{"spaces", CorrelationIDHeader, "abc def", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := CorrelationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = presenter.CorrelationID(r.Context())
			}))
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			got := rec.Header().Get(CorrelationIDHeader)
			if seen != got || got == "" {
				t.Fatalf("context id %q, header id %q", seen, got)
			}
			if kept := got == tt.value; kept != tt.wantKept {
				t.Fatalf("id = %q, kept = %v, want %v", got, kept, tt.wantKept)
			}
		})
	}
}

func TestLoggingMiddleware_PassesStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/satellite/status", nil))

	if rec.Code != http.StatusTeapot || rec.Body.String() != "short and stout" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
