package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/api/presenter"
	"github.com/darmiel/satellite/internal/buildinfo"
	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/registration"
	"github.com/darmiel/satellite/internal/syncer"
	"github.com/darmiel/satellite/pkg/hub"
)

// DecodePayload decodes a JSON body into dest. An empty body is accepted when allowEmpty is set.
func DecodePayload(r *http.Request, dest any, allowEmpty bool) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.New("unsupported content type")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		if !errors.Is(err, io.EOF) || !allowEmpty {
			return err
		}
	}
	if dec.More() {
		return errors.New("extra data in request body")
	}
	return nil
}

// handleLiveness responds with a simple OK status to indicate the process is up.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Satellite string               `json:"satellite"`
	Checks    map[string]hub.Check `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := s.Health.Run(r.Context())
	if err := s.Health.Remember(r.Context(), p); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to store health report")
	}
	presenter.JSON(w, r, HealthResponse{
		Status:    p.Status,
		Timestamp: p.Timestamp,
		Satellite: p.SatelliteName,
		Checks:    p.Checks,
	}, http.StatusOK)
}

type satelliteInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Version   string `json:"version"`
	URL       string `json:"url"`
	APIPrefix string `json:"api_prefix,omitempty"`
}

func (s *Server) satellite(withPrefix bool) satelliteInfo {
	sc := s.Config.Satellite
	info := satelliteInfo{Name: sc.Name, Type: sc.Type, Version: sc.Version, URL: sc.URL}
	if withPrefix {
		info.APIPrefix = sc.APIPrefix
	}
	return info
}

type StatusResponse struct {
	Satellite    satelliteInfo        `json:"satellite"`
	Registration *registration.Record `json:"registration"`
	Sync         SyncStatus           `json:"sync"`
	Metrics      MetricsStatus        `json:"metrics"`
	Tasks        any                  `json:"tasks"`
	Uptime       Uptime               `json:"uptime"`
	Timestamp    time.Time            `json:"timestamp"`
}

type SyncStatus struct {
	Enabled     bool                 `json:"enabled"`
	Interval    int                  `json:"interval"`
	LastSync    *syncer.Report       `json:"last_sync"`
	Checkpoints map[string]time.Time `json:"checkpoints"`
}

type MetricsStatus struct {
	Enabled  bool       `json:"enabled"`
	Interval int        `json:"interval"`
	LastSent *time.Time `json:"last_sent"`
}

type Uptime struct {
	Status   string    `json:"status"`
	Since    time.Time `json:"since"`
	Duration int64     `json:"duration"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()

	rec, err := s.Registration.State(ctx)
	if err != nil {
		presenter.Err(w, r, presenter.HTTPError{StatusCode: http.StatusInternalServerError, Err: err}, "reading registration")
		return
	}
	last, err := s.Syncer.LastReport(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to read last sync report")
	}
	checkpoints, err := s.Syncer.Checkpoints(ctx)
	if err != nil {
		presenter.Err(w, r, presenter.HTTPError{StatusCode: http.StatusInternalServerError, Err: err}, "reading checkpoints")
		return
	}

	ms := MetricsStatus{Enabled: s.Config.Metrics.Enabled, Interval: s.Config.Metrics.IntervalSeconds}
	if s.Publisher != nil {
		if t, err := s.Publisher.LastSent(ctx); err == nil && !t.IsZero() {
			ms.LastSent = &t
		}
	}

	presenter.JSON(w, r, StatusResponse{
		Satellite:    s.satellite(false),
		Registration: rec,
		Sync: SyncStatus{
			Enabled:     s.Config.Sync.Enabled,
			Interval:    s.Config.Sync.IntervalSeconds,
			LastSync:    last,
			Checkpoints: checkpoints,
		},
		Metrics: ms,
		Tasks:   s.Tasks.ListStatus(),
		Uptime: Uptime{
			Status:   "up",
			Since:    s.startedAt,
			Duration: int64(now.Sub(s.startedAt).Seconds()),
		},
		Timestamp: now,
	}, http.StatusOK)
}

type InfoResponse struct {
	Satellite    satelliteInfo   `json:"satellite"`
	InstanceID   string          `json:"instance_id"`
	Build        buildinfo.Info  `json:"build"`
	Server       map[string]any  `json:"server"`
	Capabilities map[string]bool `json:"capabilities"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	presenter.JSON(w, r, InfoResponse{
		Satellite:  s.satellite(true),
		InstanceID: s.Registration.Descriptor().InstanceID,
		Build:      buildinfo.GetBuildInfo(),
		Server: map[string]any{
			"os":       runtime.GOOS,
			"arch":     runtime.GOARCH,
			"cpus":     runtime.NumCPU(),
			"hostname": hostname,
		},
		Capabilities: registration.Capabilities(s.Config),
		Timestamp:    s.now(),
	}, http.StatusOK)
}

type MetricsResponse struct {
	Success   bool           `json:"success"`
	Metrics   map[string]any `json:"metrics"`
	Timestamp time.Time      `json:"timestamp"`
}

// handleMetrics collects once and returns the values. Nothing is pushed to the hub.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, MetricsResponse{
		Success:   true,
		Metrics:   s.Collector.Collect(r.Context()),
		Timestamp: s.now(),
	}, http.StatusOK)
}

type UpdatesPayload struct {
	Updates []hub.Update `json:"updates"`
}

type UpdatesResponse struct {
	Success   bool      `json:"success"`
	Processed int       `json:"processed"`
	Results   any       `json:"results"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	var payload UpdatesPayload
	if err := DecodePayload(r, &payload, false); err != nil {
		presenter.Err(w, r, err, "invalid request payload")
		return
	}
	if payload.Updates == nil {
		presenter.Error(w, r, "updates is required", http.StatusUnprocessableEntity)
		return
	}
	for i, u := range payload.Updates {
		if u.Type == "" {
			presenter.Error(w, r, "updates["+strconv.Itoa(i)+"].type is required", http.StatusUnprocessableEntity)
			return
		}
	}

	results := s.Updates.Process(r.Context(), payload.Updates)
	presenter.JSON(w, r, UpdatesResponse{
		Success:   true,
		Processed: len(results),
		Results:   results,
		Timestamp: s.now(),
	}, http.StatusOK)
}

type CacheResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Deleted   int64     `json:"deleted"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	var req cache.Request
	if err := DecodePayload(r, &req, true); err != nil {
		presenter.Err(w, r, err, "invalid request payload")
		return
	}
	msg, n, err := s.Cache.Clear(r.Context(), req)
	if err != nil {
		presenter.Err(w, r, presenter.HTTPError{StatusCode: http.StatusInternalServerError, Err: err}, "clearing cache")
		return
	}
	presenter.JSON(w, r, CacheResponse{Success: true, Message: msg, Deleted: n, Timestamp: s.now()}, http.StatusOK)
}
