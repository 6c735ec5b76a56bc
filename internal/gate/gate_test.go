package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/darmiel/satellite/internal/ratelimit"
	"github.com/darmiel/satellite/internal/store"
)

type countingLimiter struct {
	calls int
	allow bool
	err   error
}

func (l *countingLimiter) Allow(context.Context, string) (bool, error) {
	l.calls++
	return l.allow, l.err
}

func newRequest(mutate func(r *http.Request)) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/satellite/status", nil)
	r.RemoteAddr = "192.168.1.10:5555"
	if mutate != nil {
		mutate(r)
	}
	return r
}

func withBearer(key string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) }
}

func TestGate_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		limiter    *countingLimiter
		mutate     func(*http.Request)
		clientIP   string
		want       Reason
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "disabled wins over everything",
			opts:       Options{Enabled: false, Secret: "secret123"},
			limiter:    &countingLimiter{allow: true},
			mutate:     withBearer("wrong"),
			want:       ReasonDisabled,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "missing key",
			opts:       Options{Enabled: true, Secret: "secret123"},
			limiter:    &countingLimiter{allow: true},
			want:       ReasonMissingKey,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key is checked before rate limit",
			opts:       Options{Enabled: true, Secret: "secret123"},
			limiter:    &countingLimiter{allow: false},
			mutate:     withBearer("wrong"),
			want:       ReasonInvalidKey,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty configured secret never validates",
			opts:       Options{Enabled: true, Secret: ""},
			limiter:    &countingLimiter{allow: true},
			mutate:     func(r *http.Request) { r.Header.Set("X-API-Key", "anything") },
			want:       ReasonInvalidKey,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "rate limited before ip check",
			opts:       Options{Enabled: true, Secret: "secret123", Allowlist: []string{"10.0.0.0/8"}},
			limiter:    &countingLimiter{allow: false},
			mutate:     withBearer("secret123"),
			want:       ReasonRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantCalls:  1,
		},
		{
			name:       "limiter failure fails closed",
			opts:       Options{Enabled: true, Secret: "secret123"},
			limiter:    &countingLimiter{err: errors.New("redis down")},
			mutate:     withBearer("secret123"),
			want:       ReasonRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantCalls:  1,
		},
		{
			name:       "ip denied consumes budget",
			opts:       Options{Enabled: true, Secret: "secret123", Allowlist: []string{"10.0.0.0/8"}},
			limiter:    &countingLimiter{allow: true},
			mutate:     withBearer("secret123"),
			want:       ReasonIPDenied,
			wantStatus: http.StatusForbidden,
			wantCalls:  1,
		},
		{
			name:       "allowlisted ip passes",
			opts:       Options{Enabled: true, Secret: "secret123", Allowlist: []string{"10.0.0.0/8", "192.168.1.0/24"}},
			limiter:    &countingLimiter{allow: true},
			mutate:     withBearer("secret123"),
			want:       ReasonOK,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "empty allowlist means no restriction",
			opts:       Options{Enabled: true, Secret: "secret123"},
			limiter:    &countingLimiter{allow: true},
			mutate:     func(r *http.Request) { r.URL.RawQuery = "api_key=secret123" },
			want:       ReasonOK,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Limiter = tt.limiter
			g := New(tt.opts)
			r := newRequest(tt.mutate)

			d := g.Evaluate(r, ClientIP(r))
			if d.Reason != tt.want {
				t.Fatalf("Reason = %s, want %s", d.Reason, tt.want)
			}
			if d.Allowed != (tt.want == ReasonOK) {
				t.Fatalf("Allowed = %v inconsistent with reason %s", d.Allowed, d.Reason)
			}
			if d.Reason.Status() != tt.wantStatus {
				t.Fatalf("Status = %d, want %d", d.Reason.Status(), tt.wantStatus)
			}
			if tt.limiter.calls != tt.wantCalls {
				t.Fatalf("limiter calls = %d, want %d", tt.limiter.calls, tt.wantCalls)
			}
		})
	}
}

func TestGate_RateLimitSequence(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(store.NewInMemoryStore(), store.NewKeys(""), 100)
	g := New(Options{Enabled: true, Secret: "secret123", Limiter: limiter})

	for i := 1; i <= 100; i++ {
		r := newRequest(withBearer("secret123"))
		if d := g.Evaluate(r, ClientIP(r)); !d.Allowed {
			t.Fatalf("request %d rejected with %s", i, d.Reason)
		}
	}
	r := newRequest(withBearer("secret123"))
	if d := g.Evaluate(r, ClientIP(r)); d.Reason != ReasonRateLimited {
		t.Fatalf("request 101 = %s, want rate_limited", d.Reason)
	}
}

func TestGate_Scenarios(t *testing.T) {
	type step struct {
		ip   string
		want Reason
	}
	tests := []struct {
		name      string
		limit     int
		allowlist []string
		steps     []step
	}{
		{
			name:  "limit 2 for one client",
			limit: 2,
			steps: []step{
				{"10.0.0.1", ReasonOK},
				{"10.0.0.1", ReasonOK},
				{"10.0.0.1", ReasonRateLimited},
			},
		},
		{
			name:  "limit is per client ip",
			limit: 2,
			steps: []step{
				{"10.0.0.1", ReasonOK},
				{"10.0.0.1", ReasonOK},
				{"10.0.0.2", ReasonOK},
				{"10.0.0.1", ReasonRateLimited},
			},
		},
		{
			name:      "allowlist 10.0.0.0/24",
			limit:     100,
			allowlist: []string{"10.0.0.0/24"},
			steps: []step{
				{"10.0.0.5", ReasonOK},
				{"10.0.1.5", ReasonIPDenied},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := ratelimit.NewFixedWindow(store.NewInMemoryStore(), store.NewKeys(""), tt.limit)
			g := New(Options{Enabled: true, Secret: "secret123", Allowlist: tt.allowlist, Limiter: limiter})

			for i, st := range tt.steps {
				r := newRequest(withBearer("secret123"))
				r.RemoteAddr = st.ip + ":5555"
				if d := g.Evaluate(r, ClientIP(r)); d.Reason != st.want {
					t.Fatalf("request %d from %s = %s, want %s", i+1, st.ip, d.Reason, st.want)
				}
			}
		})
	}
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   string
	}{
		{"bearer", withBearer("a"), "a"},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer b") }, "b"},
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "c") }, "c"},
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=d" }, "d"},
		{"bearer beats header and query", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer a")
			r.Header.Set("X-API-Key", "c")
			r.URL.RawQuery = "api_key=d"
		}, "a"},
		{"header beats query", func(r *http.Request) {
			r.Header.Set("X-API-Key", "c")
			r.URL.RawQuery = "api_key=d"
		}, "c"},
		{"basic auth is ignored", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
			r.Header.Set("X-API-Key", "c")
		}, "c"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractKey(newRequest(tt.mutate)); got != tt.want {
				t.Errorf("ExtractKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecision_NeverSerializesKey(t *testing.T) {
	d := Decision{Allowed: true, Reason: ReasonOK, ClientIP: "1.2.3.4", PresentedKey: "secret123"}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "secret123") {
		t.Fatalf("decision JSON leaks key: %s", b)
	}

	ctx := WithDecision(context.Background(), d)
	got, ok := DecisionFrom(ctx)
	if !ok || got.Reason != ReasonOK {
		t.Fatalf("DecisionFrom() = %+v, %v", got, ok)
	}
}
