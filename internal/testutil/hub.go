package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// HubRequest is one request received by the fake hub.
type HubRequest struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

// FakeHub is an httptest server speaking the hub's satellite API.
// Unconfigured routes answer 200 with {"success": true}.
type FakeHub struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []HubRequest
	statuses  map[string][]int
	responses map[string]any
}

func NewFakeHub(t *testing.T) *FakeHub {
	t.Helper()
	h := &FakeHub{
		statuses:  make(map[string][]int),
		responses: make(map[string]any),
	}
	h.Server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.Close)
	return h
}

// Respond sets the JSON body returned for route, e.g. "/api/satellites/register".
func (h *FakeHub) Respond(route string, body any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses[route] = body
}

// FailWith queues status codes for route. Each request consumes one; afterwards the route succeeds.
func (h *FakeHub) FailWith(route string, statuses ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[route] = append(h.statuses[route], statuses...)
}

func (h *FakeHub) Requests(route string) []HubRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HubRequest
	for _, r := range h.requests {
		if route == "" || r.Path == route {
			out = append(out, r)
		}
	}
	return out
}

func (h *FakeHub) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	h.mu.Lock()
	h.requests = append(h.requests, HubRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	status := http.StatusOK
	if queued := h.statuses[r.URL.Path]; len(queued) > 0 {
		status = queued[0]
		h.statuses[r.URL.Path] = queued[1:]
	}
	resp, ok := h.responses[r.URL.Path]
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch {
	case status >= 400:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   strings.ToLower(http.StatusText(status)),
			"message": "fake hub failure",
		})
	case ok:
		_ = json.NewEncoder(w).Encode(resp)
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}
}
