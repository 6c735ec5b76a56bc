package hub

import (
	"context"
	"encoding/json"
	"time"
)

const BasePath = "/api/satellites"

const (
	RegisterRoute = "/register"
	SyncRoute     = "/sync"
	MetricsRoute  = "/metrics"
	HealthRoute   = "/health"
)

// Descriptor is what the satellite announces about itself on registration.
type Descriptor struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Version        string          `json:"version"`
	URL            string          `json:"url"`
	APIPrefix      string          `json:"api_prefix"`
	Capabilities   map[string]bool `json:"capabilities"`
	HealthEndpoint string          `json:"health_endpoint"`
	MetricsEnabled bool            `json:"metrics_enabled"`
	SyncEnabled    bool            `json:"sync_enabled"`
	InstanceID     string          `json:"instance_id,omitempty"`
}

type RegistrationResult struct {
	SatelliteID string `json:"satellite_id"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

type MetricsPayload struct {
	SatelliteName string         `json:"satellite_name"`
	Timestamp     time.Time      `json:"timestamp"`
	Metrics       map[string]any `json:"metrics"`
}

// SyncPayload carries one batch of one dataset.
type SyncPayload struct {
	SatelliteName string           `json:"satellite_name"`
	Type          string           `json:"type"`
	Data          []map[string]any `json:"data"`
	Timestamp     time.Time        `json:"timestamp"`
	RunID         string           `json:"run_id,omitempty"`
	Batch         int              `json:"batch,omitempty"`
	Batches       int              `json:"batches,omitempty"`
}

type SyncResponse struct {
	Success bool     `json:"success"`
	Updates []Update `json:"updates,omitempty"`
}

// Update is one instruction pushed back by the hub.
// Data is kept raw; a malformed record surfaces when it is applied, not when the response is decoded.
type Update struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON never fails on a single record. Non-string ids and types are kept as their JSON text
// and a record that is not an object is kept whole in Data.
func (u *Update) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Type json.RawMessage `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		*u = Update{Data: append(json.RawMessage(nil), b...)}
		return nil
	}
	*u = Update{
		ID:   rawString(raw.ID),
		Type: rawString(raw.Type),
		Data: raw.Data,
	}
	return nil
}

func rawString(b json.RawMessage) string {
	if len(b) == 0 || string(b) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}

type Check struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type HealthPayload struct {
	SatelliteName string           `json:"satellite_name"`
	Timestamp     time.Time        `json:"timestamp"`
	Status        string           `json:"status"`
	Checks        map[string]Check `json:"checks"`
}

// HealthReport is the hub's answer to a health report.
type HealthReport struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Extra   map[string]any `json:"-"`
}

// UpdateHandler receives the updates returned from a sync call.
type UpdateHandler interface {
	HandleUpdates(ctx context.Context, updates []Update)
}

type UpdateHandlerFunc func(ctx context.Context, updates []Update)

func (f UpdateHandlerFunc) HandleUpdates(ctx context.Context, updates []Update) {
	f(ctx, updates)
}
