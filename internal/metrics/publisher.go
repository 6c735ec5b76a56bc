package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/logging"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/pkg/hub"
)

// CheckpointName is the checkpoint advanced after the hub acknowledged a metrics push.
const CheckpointName = "metrics"

var errNotAcknowledged = errors.New("metrics not acknowledged by hub")

type Pusher interface {
	PushMetrics(ctx context.Context, p hub.MetricsPayload) error
}

// Publisher pushes collected metrics to the hub.
type Publisher struct {
	collector *Collector
	hub       Pusher
	store     store.Store
	keys      store.Keys
	name      string
}

func NewPublisher(c *Collector, p Pusher, s store.Store, keys store.Keys) *Publisher {
	return &Publisher{collector: c, hub: p, store: s, keys: keys, name: c.cfg.Satellite.Name}
}

// Publish collects and pushes one snapshot. It reports false when the hub did not
// acknowledge it; the next cycle is the retry.
func (p *Publisher) Publish(ctx context.Context) (map[string]any, bool) {
	sentAt := p.collector.now()
	values := p.collector.Collect(ctx)
	err := p.hub.PushMetrics(ctx, hub.MetricsPayload{
		SatelliteName: p.name,
		Timestamp:     sentAt,
		Metrics:       values,
	})
	if err != nil {
		return values, false
	}
	if _, err := p.store.Advance(ctx, p.keys.Checkpoint(CheckpointName), sentAt); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to advance metrics checkpoint")
	}
	return values, true
}

// LastSent returns the time of the last acknowledged push, or the zero time.
func (p *Publisher) LastSent(ctx context.Context) (time.Time, error) {
	return p.store.Checkpoint(ctx, p.keys.Checkpoint(CheckpointName))
}

// Task adapts Publish to a scheduled task.
func (p *Publisher) Task(ctx context.Context, l logging.InternalLogger) error {
	values, ok := p.Publish(ctx)
	if !ok {
		l.Warn("metrics not acknowledged by hub, retrying next cycle")
		return errNotAcknowledged
	}
	l.Info("sent %d metrics to hub", len(values))
	return nil
}
