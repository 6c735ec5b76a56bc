package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/darmiel/satellite/internal/config"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Options), options ...Option) *Client {
	t.Helper()
	opts := Options{
		BaseURL:       srv.URL,
		APIKey:        "hub-secret",
		SatelliteName: "sat-1",
		SatelliteType: "logistik",
		InstanceID:    "instance-1",
		Timeout:       5 * time.Second,
		VerifySSL:     true,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts, append([]Option{WithSleep(noSleep)}, options...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresURLAndKey(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantKey string
	}{
		{"missing url", Options{APIKey: "k"}, "hub.url"},
		{"missing key", Options{BaseURL: "https://hub"}, "hub.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			var missing config.ErrMissing
			if !errors.As(err, &missing) || missing.Key != tt.wantKey {
				t.Fatalf("New() error = %v, want missing %s", err, tt.wantKey)
			}
		})
	}
}

func TestClient_RegisterSendsHeaders(t *testing.T) {
	var got *http.Request
	var body Descriptor
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(RegistrationResult{SatelliteID: "sat-42", Status: "registered"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	res, err := c.Register(context.Background(), Descriptor{Name: "sat-1", Type: "logistik"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.SatelliteID != "sat-42" {
		t.Errorf("SatelliteID = %q", res.SatelliteID)
	}

	checks := map[string]string{
		"Authorization":        "Bearer hub-secret",
		"X-Satellite-Name":     "sat-1",
		"X-Satellite-Type":     "logistik",
		"X-Satellite-Instance": "instance-1",
		"Accept":               "application/json",
		"Content-Type":         "application/json",
	}
	for header, want := range checks {
		if v := got.Header.Get(header); v != want {
			t.Errorf("%s = %q, want %q", header, v, want)
		}
	}
	if got.Header.Get("User-Agent") == "" || got.Header.Get(CorrelationIDHeader) == "" {
		t.Error("User-Agent and correlation id must be set")
	}
	if got.URL.Path != BasePath+RegisterRoute {
		t.Errorf("path = %s", got.URL.Path)
	}
	if body.Name != "sat-1" {
		t.Errorf("body name = %q", body.Name)
	}
}

func TestClient_RegisterRetries(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantErr      bool
		wantCalls    int32
		wantAuthFail bool
	}{
		{"succeeds after transient 5xx", []int{503, 502, 200}, false, 3, false},
		{"429 is retried", []int{429, 200}, false, 2, false},
		{"gives up after attempts", []int{500, 500, 500, 500}, true, 3, false},
		{"401 is final", []int{401, 200}, true, 1, true},
		{"400 is final", []int{400, 200}, true, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[n-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = w.Write([]byte(`{"satellite_id":"x"}`))
				} else {
					_, _ = w.Write([]byte(`{"error":"nope"}`))
				}
			}))
			defer srv.Close()

			c := newTestClient(t, srv, nil)
			_, err := c.Register(context.Background(), Descriptor{Name: "sat-1"})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if err != nil {
				var hubErr *Error
				if !errors.As(err, &hubErr) || hubErr.Kind != KindRegistration {
					t.Fatalf("error = %v, want *Error of kind registration", err)
				}
				if errors.Is(err, ErrAuthentication) != tt.wantAuthFail {
					t.Fatalf("errors.Is(ErrAuthentication) = %v", !tt.wantAuthFail)
				}
			}
		})
	}
}

func TestClient_RegisterConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	var sleeps int
	c := newTestClient(t, srv, nil, WithSleep(func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}))
	_, err := c.Register(context.Background(), Descriptor{})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("error = %v, want ErrConnection", err)
	}
	if sleeps != 2 {
		t.Fatalf("sleeps = %d, want 2 (3 attempts)", sleeps)
	}
}

func TestClient_RegisterStopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(o *Options) { o.RetryDelay = time.Minute }, WithSleep(sleepCtx))
	start := time.Now()
	_, err := c.Register(ctx, Descriptor{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Register took %s after cancellation", elapsed)
	}
}

func TestClient_MetricsAndSyncAreSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if c.SendMetrics(context.Background(), MetricsPayload{SatelliteName: "sat-1"}) {
		t.Fatal("SendMetrics should report failure")
	}
	if c.SyncData(context.Background(), SyncPayload{Type: "tenants"}) {
		t.Fatal("SyncData should report failure")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want one per operation", calls.Load())
	}
}

func TestClient_OnlySuccessStatusIsAcknowledged(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"ok", http.StatusOK, nil},
		{"accepted", http.StatusAccepted, nil},
		{"no content", http.StatusNoContent, nil},
		{"not modified", http.StatusNotModified, ErrRejected},
		{"multiple choices", http.StatusMultipleChoices, ErrRejected},
		{"bad request", http.StatusBadRequest, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv, nil)
			err := c.PushMetrics(context.Background(), MetricsPayload{SatelliteName: "sat-1"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var hubErr *Error
			if tt.wantErr != nil && (!errors.As(err, &hubErr) || hubErr.StatusCode != tt.status) {
				t.Fatalf("err = %#v, want status %d", err, tt.status)
			}
		})
	}
}

func TestClient_BestEffortRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(o *Options) { o.RetryBestEffort = true })
	if !c.SendMetrics(context.Background(), MetricsPayload{}) {
		t.Fatal("SendMetrics should succeed after retries")
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_SyncDispatchesUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p SyncPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.Type != "users" || len(p.Data) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"updates":[{"type":"cache_clear","data":{"tags":["sync"]}},{"type":"tenant_update","data":{"id":1}}]}`))
	}))
	defer srv.Close()

	var received []Update
	c := newTestClient(t, srv, nil, WithUpdateHandler(UpdateHandlerFunc(func(_ context.Context, u []Update) {
		received = u
	})))

	ok := c.SyncData(context.Background(), SyncPayload{
		SatelliteName: "sat-1",
		Type:          "users",
		Data:          []map[string]any{{"id": 1}, {"id": 2}},
	})
	if !ok {
		t.Fatal("SyncData failed")
	}
	if len(received) != 2 || received[0].Type != "cache_clear" {
		t.Fatalf("received updates = %+v", received)
	}
}

func TestClient_SyncToleratesMalformedUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"updates":[` +
			`{"type":"config_update","data":"not-an-object"},` +
			`{"type":"cache_clear","data":{"all":true}},` +
			`{"id":42,"type":7,"data":[1]},` +
			`"not-a-record"]}`))
	}))
	defer srv.Close()

	var received []Update
	c := newTestClient(t, srv, nil, WithUpdateHandler(UpdateHandlerFunc(func(_ context.Context, u []Update) {
		received = u
	})))

	res, err := c.Sync(context.Background(), SyncPayload{SatelliteName: "sat-1", Type: "tenants"})
	if err != nil {
		t.Fatalf("Sync err = %v", err)
	}
	if !res.Success || len(received) != 4 {
		t.Fatalf("success = %v, received = %+v", res.Success, received)
	}

	tests := []struct {
		name     string
		got      Update
		wantID   string
		wantType string
		wantData string
	}{
		{"string data", received[0], "", "config_update", `"not-an-object"`},
		{"object data", received[1], "", "cache_clear", `{"all":true}`},
		{"numeric id and type", received[2], "42", "7", `[1]`},
		{"not an object", received[3], "", "", `"not-a-record"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.ID != tt.wantID || tt.got.Type != tt.wantType || string(tt.got.Data) != tt.wantData {
				t.Fatalf("update = {%q %q %s}, want {%q %q %s}",
					tt.got.ID, tt.got.Type, tt.got.Data, tt.wantID, tt.wantType, tt.wantData)
			}
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != BasePath+HealthRoute {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","message":"welcome back","next_check":60}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	report, err := c.HealthCheck(context.Background(), HealthPayload{Status: "healthy"})
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if report.Status != "ok" || report.Message != "welcome back" {
		t.Fatalf("report = %+v", report)
	}
	if _, ok := report.Extra["next_check"]; !ok {
		t.Fatal("extra fields should be kept")
	}
}
