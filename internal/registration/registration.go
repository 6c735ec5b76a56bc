package registration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/pkg/hub"
)

// StaleAfter is how long a successful registration stays valid.
const StaleAfter = 24 * time.Hour

const registrationDataTTL = 24 * time.Hour

const StatusRegistered = "registered"

// Record is the persisted outcome of the last successful registration.
type Record struct {
	LastRegisteredAt *time.Time `json:"last_registered_at,omitempty"`
	SatelliteID      string     `json:"satellite_id,omitempty"`
	Status           string     `json:"status,omitempty"`
	PayloadHash      string     `json:"payload_hash,omitempty"`
}

// Registrar is the hub call used to register.
type Registrar interface {
	Register(ctx context.Context, d hub.Descriptor) (*hub.RegistrationResult, error)
}

type Manager struct {
	cfg        *config.Config
	store      store.Store
	keys       store.Keys
	hub        Registrar
	instanceID string
	now        func() time.Time
}

func NewManager(cfg *config.Config, s store.Store, keys store.Keys, registrar Registrar, instanceID string) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      s,
		keys:       keys,
		hub:        registrar,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// InstanceID returns the persisted instance id, creating one on first use.
func InstanceID(ctx context.Context, s store.Store, keys store.Keys) (string, error) {
	raw, err := s.Get(ctx, keys.Instance())
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("reading instance id: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generating instance id: %w", err)
	}
	if err := s.Set(ctx, keys.Instance(), []byte(id.String()), 0); err != nil {
		return "", fmt.Errorf("storing instance id: %w", err)
	}
	return id.String(), nil
}

// Descriptor builds the registration payload from configuration.
func (m *Manager) Descriptor() hub.Descriptor {
	return hub.Descriptor{
		Name:           m.cfg.Satellite.Name,
		Type:           m.cfg.Satellite.Type,
		Version:        m.cfg.Satellite.Version,
		URL:            m.cfg.Satellite.URL,
		APIPrefix:      m.cfg.Satellite.APIPrefix,
		Capabilities:   Capabilities(m.cfg),
		HealthEndpoint: m.cfg.Health.Endpoint,
		MetricsEnabled: m.cfg.Metrics.Enabled,
		SyncEnabled:    m.cfg.Sync.Enabled,
		InstanceID:     m.instanceID,
	}
}

func descriptorHash(d hub.Descriptor) string {
	// map keys are sorted by encoding/json, so the hash is stable
	b, _ := json.Marshal(d)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// State returns the stored record, or nil if the satellite never registered.
func (m *Manager) State(ctx context.Context) (*Record, error) {
	raw, err := m.store.Get(ctx, m.keys.Registration())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registration state: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding registration state: %w", err)
	}
	return &rec, nil
}

// ShouldRegister is true when forced, when no successful registration is recorded,
// when the last one is at least StaleAfter old, or when the descriptor changed since.
func (m *Manager) ShouldRegister(ctx context.Context, force bool) (bool, error) {
	if force {
		return true, nil
	}
	rec, err := m.State(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.LastRegisteredAt == nil {
		return true, nil
	}
	if m.now().Sub(*rec.LastRegisteredAt) >= StaleAfter {
		return true, nil
	}
	return rec.PayloadHash != descriptorHash(m.Descriptor()), nil
}

// Register sends the descriptor to the hub and records the outcome.
// The stored record is only touched on success.
func (m *Manager) Register(ctx context.Context) (*hub.RegistrationResult, error) {
	if err := m.cfg.RequireHub(); err != nil {
		return nil, err
	}

	d := m.Descriptor()
	res, err := m.hub.Register(ctx, d)
	if err != nil {
		return nil, err
	}

	now := m.now()
	rec := Record{
		LastRegisteredAt: &now,
		SatelliteID:      res.SatelliteID,
		Status:           StatusRegistered,
		PayloadHash:      descriptorHash(d),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding registration state: %w", err)
	}
	if err := m.store.Set(ctx, m.keys.Registration(), raw, 0); err != nil {
		return nil, fmt.Errorf("storing registration state: %w", err)
	}

	if data, err := json.Marshal(res); err == nil {
		if err := m.store.Set(ctx, m.keys.Cache("satellite", "registration_data"), data, registrationDataTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to cache registration response")
		}
	}
	return res, nil
}

// EnsureRegistered registers when ShouldRegister says so.
// It reports whether a registration call was made and succeeded.
func (m *Manager) EnsureRegistered(ctx context.Context, force bool) (bool, error) {
	should, err := m.ShouldRegister(ctx, force)
	if err != nil {
		return false, err
	}
	if !should {
		return false, nil
	}
	if _, err := m.Register(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AutoRegister is the boot-time registration. It runs whenever auto registration is on,
// independent of sync being enabled. Failures are logged and swallowed.
func (m *Manager) AutoRegister(ctx context.Context) {
	if !m.cfg.Sync.AutoRegister {
		return
	}
	l := log.With().Str("satellite", m.cfg.Satellite.Name).Logger()

	registered, err := m.EnsureRegistered(ctx, false)
	switch {
	case err != nil:
		l.Error().Err(err).Msg("auto registration failed")
	case registered:
		l.Info().Msg("satellite registered with hub")
	default:
		l.Debug().Msg("registration still valid, skipping")
	}
}
