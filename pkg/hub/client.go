package hub

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/buildinfo"
	"github.com/darmiel/satellite/internal/config"
)

type Options struct {
	BaseURL       string
	APIKey        config.Secret
	SatelliteName string
	SatelliteType string
	InstanceID    string

	Timeout   time.Duration
	VerifySSL bool

	// RetryAttempts is the total number of attempts for registration and health calls.
	RetryAttempts int
	RetryDelay    time.Duration

	// RetryBestEffort applies the same bounded retries to metrics and sync pushes.
	RetryBestEffort bool
}

// OptionsFromConfig maps the satellite configuration to client options.
func OptionsFromConfig(cfg *config.Config, instanceID string) Options {
	return Options{
		BaseURL:         cfg.Hub.URL,
		APIKey:          cfg.Hub.APIKey,
		SatelliteName:   cfg.Satellite.Name,
		SatelliteType:   cfg.Satellite.Type,
		InstanceID:      instanceID,
		Timeout:         cfg.Hub.Timeout(),
		VerifySSL:       cfg.Security.VerifySSL,
		RetryAttempts:   cfg.Hub.RetryAttempts,
		RetryDelay:      cfg.Hub.RetryDelay(),
		RetryBestEffort: cfg.Hub.RetryBestEffort,
	}
}

type Option func(c *Client)

// WithHTTPClient replaces the default client. Timeout and TLS options are not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithUpdateHandler(h UpdateHandler) Option {
	return func(c *Client) { c.updates = h }
}

// WithSleep replaces the pause between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// Client is the single authenticated channel to the hub.
type Client struct {
	baseURL    string
	apiKey     config.Secret
	headers    http.Header
	httpClient *http.Client

	attempts   int
	delay      time.Duration
	bestEffort bool

	updates UpdateHandler
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

func New(opts Options, options ...Option) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, config.ErrMissing{Key: "hub.url"}
	}
	if opts.APIKey.Empty() {
		return nil, config.ErrMissing{Key: "hub.api_key"}
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", buildinfo.UserAgent())
	headers.Set("X-Satellite-Name", opts.SatelliteName)
	headers.Set("X-Satellite-Type", opts.SatelliteType)
	if opts.InstanceID != "" {
		headers.Set("X-Satellite-Instance", opts.InstanceID)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out
	}

	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/") + BasePath,
		apiKey:  opts.APIKey,
		headers: headers,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		attempts:   attempts,
		delay:      opts.RetryDelay,
		bestEffort: opts.RetryBestEffort,
		sleep:      sleepCtx,
		log:        log.With().Str("component", "hub").Str("satellite", opts.SatelliteName).Logger(),
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Register announces the satellite. Retried on transient failures.
func (c *Client) Register(ctx context.Context, d Descriptor) (*RegistrationResult, error) {
	var res RegistrationResult
	if err := c.post(ctx, KindRegistration, RegisterRoute, d, &res, c.attempts); err != nil {
		c.log.Error().Err(err).Msg("hub.register.failed")
		return nil, err
	}
	c.log.Info().Str("satellite_id", res.SatelliteID).Msg("hub.register.succeeded")
	return &res, nil
}

// PushMetrics sends one metrics snapshot.
func (c *Client) PushMetrics(ctx context.Context, p MetricsPayload) error {
	if err := c.post(ctx, KindMetrics, MetricsRoute, p, nil, c.bestEffortAttempts()); err != nil {
		c.log.Warn().Err(err).Msg("hub.metrics.failed")
		return err
	}
	c.log.Debug().Int("metrics_count", len(p.Metrics)).Msg("hub.metrics.sent")
	return nil
}

// SendMetrics is PushMetrics reduced to success or failure.
func (c *Client) SendMetrics(ctx context.Context, p MetricsPayload) bool {
	return c.PushMetrics(ctx, p) == nil
}

// Sync sends one batch and hands any returned updates to the update handler.
// The returned response is only valid when err is nil.
func (c *Client) Sync(ctx context.Context, p SyncPayload) (*SyncResponse, error) {
	var res SyncResponse
	if err := c.post(ctx, KindSync, SyncRoute, p, &res, c.bestEffortAttempts()); err != nil {
		c.log.Error().Err(err).Str("type", p.Type).Msg("hub.sync.failed")
		return nil, err
	}
	c.log.Info().Str("type", p.Type).Int("count", len(p.Data)).Msg("hub.sync.succeeded")

	if len(res.Updates) > 0 && c.updates != nil {
		c.updates.HandleUpdates(ctx, res.Updates)
	}
	return &res, nil
}

// SyncData is Sync reduced to success or failure.
func (c *Client) SyncData(ctx context.Context, p SyncPayload) bool {
	_, err := c.Sync(ctx, p)
	return err == nil
}

// HealthCheck reports local health to the hub and returns its answer. Retried on transient failures.
func (c *Client) HealthCheck(ctx context.Context, p HealthPayload) (HealthReport, error) {
	var raw map[string]any
	if err := c.post(ctx, KindHealth, HealthRoute, p, &raw, c.attempts); err != nil {
		c.log.Error().Err(err).Msg("hub.health.failed")
		return HealthReport{}, err
	}

	report := HealthReport{Extra: raw}
	if s, ok := raw["status"].(string); ok {
		report.Status = s
	}
	if m, ok := raw["message"].(string); ok {
		report.Message = m
	}
	return report, nil
}

func (c *Client) bestEffortAttempts() int {
	if c.bestEffort {
		return c.attempts
	}
	return 1
}

func (c *Client) post(ctx context.Context, kind Kind, route string, payload, result any, attempts int) error {
	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.do(ctx, kind, route, payload, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts || !err.Retryable() {
			break
		}

		c.log.Debug().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("delay", c.delay).
			Msg("hub.retry")

		if err := c.sleep(ctx, c.delay); err != nil {
			return &Error{Kind: kind, Op: route, Err: errors.Join(ErrConnection, err)}
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
