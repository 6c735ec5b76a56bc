// Package syncer pushes dataset snapshots to the hub and classifies the outcome of a run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/logging"
	"github.com/darmiel/satellite/internal/source"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/pkg/hub"
)

const (
	CacheTag     = "sync"
	LastSyncKey  = "last_sync"
	lastSyncTTL  = 7 * 24 * time.Hour
	defaultBatch = 100
)

// ErrFailed is returned when no dataset could be synced.
var ErrFailed = errors.New("sync failed")

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

type DatasetStatus string

const (
	StatusSynced  DatasetStatus = "synced"
	StatusSkipped DatasetStatus = "skipped"
	StatusFailed  DatasetStatus = "failed"
	StatusDryRun  DatasetStatus = "dry_run"
)

type DatasetResult struct {
	Dataset    string        `json:"dataset"`
	Status     DatasetStatus `json:"status"`
	Records    int           `json:"records"`
	Batches    int           `json:"batches"`
	Updates    int           `json:"updates,omitempty"`
	Checkpoint *time.Time    `json:"checkpoint,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type Report struct {
	RunID      string          `json:"run_id"`
	Outcome    Outcome         `json:"outcome"`
	DryRun     bool            `json:"dry_run,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []DatasetResult `json:"results"`
}

func (r Report) Count(status DatasetStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Pusher is the part of the hub client the orchestrator needs.
type Pusher interface {
	Sync(ctx context.Context, p hub.SyncPayload) (*hub.SyncResponse, error)
}

type RunOptions struct {
	// Only restricts the run to the named datasets.
	Only   []string
	DryRun bool
}

type Orchestrator struct {
	source      source.Source
	hub         Pusher
	store       store.Store
	keys        store.Keys
	cache       *cache.Cache
	datasets    []source.Dataset
	name        string
	batchSize   int
	concurrency int
	now         func() time.Time
}

func New(cfg *config.Config, src source.Source, pusher Pusher, s store.Store, keys store.Keys, c *cache.Cache) *Orchestrator {
	batch := cfg.Sync.BatchSize
	if batch <= 0 {
		batch = defaultBatch
	}
	conc := cfg.Sync.Concurrency
	if conc < 1 {
		conc = 1
	}
	return &Orchestrator{
		source:      src,
		hub:         pusher,
		store:       s,
		keys:        keys,
		cache:       c,
		datasets:    source.Datasets(cfg),
		name:        cfg.Satellite.Name,
		batchSize:   batch,
		concurrency: conc,
		now:         time.Now,
	}
}

func (o *Orchestrator) Datasets() []source.Dataset {
	return o.datasets
}

func (o *Orchestrator) selectDatasets(only []string) ([]source.Dataset, error) {
	if len(only) == 0 {
		return o.datasets, nil
	}
	var out []source.Dataset
	for _, name := range only {
		idx := slices.IndexFunc(o.datasets, func(ds source.Dataset) bool { return ds.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("unknown dataset %q", name)
		}
		out = append(out, o.datasets[idx])
	}
	return out, nil
}

// Run syncs every selected dataset. Datasets run concurrently up to the configured limit
// and never affect each other. The returned error is ErrFailed if nothing could be synced.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (Report, error) {
	datasets, err := o.selectDatasets(opts.Only)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		RunID:     xid.New().String(),
		DryRun:    opts.DryRun,
		StartedAt: o.now(),
		Results:   make([]DatasetResult, len(datasets)),
	}
	l := log.With().Str("run_id", report.RunID).Logger()
	ctx = hub.WithCorrelationID(l.WithContext(ctx), report.RunID)

	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	for i, ds := range datasets {
		i, ds := i, ds
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				report.Results[i] = DatasetResult{Dataset: ds.Name, Status: StatusFailed, Error: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()
			report.Results[i] = o.syncDataset(ctx, ds, report, opts.DryRun)
		}()
	}
	wg.Wait()

	report.FinishedAt = o.now()
	report.Outcome = classify(report.Results)

	if !opts.DryRun && o.cache != nil {
		if err := o.cache.PutTTL(ctx, CacheTag, LastSyncKey, report, lastSyncTTL); err != nil {
			l.Warn().Err(err).Msg("failed to store sync report")
		}
	}

	ev := l.Info()
	if report.Outcome != OutcomeSuccess {
		ev = l.Warn()
	}
	ev.Str("outcome", string(report.Outcome)).
		Int("synced", report.Count(StatusSynced)).
		Int("skipped", report.Count(StatusSkipped)).
		Int("failed", report.Count(StatusFailed)).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("sync.completed")

	if report.Outcome == OutcomeFailure {
		return report, ErrFailed
	}
	return report, nil
}

func (o *Orchestrator) syncDataset(ctx context.Context, ds source.Dataset, run Report, dryRun bool) DatasetResult {
	l := log.Ctx(ctx).With().Str("dataset", ds.Name).Logger()
	res := DatasetResult{Dataset: ds.Name}

	records, err := o.source.Collect(ctx, ds)
	switch {
	case errors.Is(err, source.ErrUnavailable):
		l.Debug().Err(err).Msg("dataset unavailable, skipping")
		res.Status = StatusSkipped
		return res
	case err != nil:
		l.Error().Err(err).Msg("collecting dataset failed")
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}
	res.Records = len(records)
	if len(records) == 0 {
		res.Status = StatusSkipped
		return res
	}

	chunks := chunk(records, o.batchSize)
	res.Batches = len(chunks)
	if dryRun {
		res.Status = StatusDryRun
		return res
	}

	for i, data := range chunks {
		resp, err := o.hub.Sync(ctx, hub.SyncPayload{
			SatelliteName: o.name,
			Type:          ds.Name,
			Data:          data,
			Timestamp:     run.StartedAt,
			RunID:         run.RunID,
			Batch:         i + 1,
			Batches:       len(chunks),
		})
		if err != nil {
			// earlier batches were acknowledged but the checkpoint stays until the whole dataset is
			res.Status = StatusFailed
			res.Error = err.Error()
			return res
		}
		res.Updates += len(resp.Updates)
	}

	moved, err := o.store.Advance(ctx, o.keys.Checkpoint(ds.Name), run.StartedAt)
	if err != nil {
		l.Warn().Err(err).Msg("failed to advance checkpoint")
	} else if moved {
		t := run.StartedAt
		res.Checkpoint = &t
	}
	res.Status = StatusSynced
	return res
}

// classify maps per-dataset results to the run outcome. Skipped datasets count as neither.
func classify(results []DatasetResult) Outcome {
	var ok, failed int
	for _, r := range results {
		switch r.Status {
		case StatusSynced, StatusDryRun:
			ok++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return OutcomeSuccess
	case ok == 0:
		return OutcomeFailure
	default:
		return OutcomePartial
	}
}

func chunk(records []map[string]any, size int) [][]map[string]any {
	var out [][]map[string]any
	for len(records) > size {
		out = append(out, records[:size:size])
		records = records[size:]
	}
	if len(records) > 0 {
		out = append(out, records)
	}
	return out
}

// LastReport returns the report of the last non dry-run sync, if any.
func (o *Orchestrator) LastReport(ctx context.Context) (*Report, error) {
	if o.cache == nil {
		return nil, nil
	}
	var r Report
	ok, err := o.cache.Get(ctx, CacheTag, LastSyncKey, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// Checkpoints returns the last acknowledged sync time per dataset. Datasets never synced are omitted.
func (o *Orchestrator) Checkpoints(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(o.datasets))
	for _, ds := range o.datasets {
		t, err := o.store.Checkpoint(ctx, o.keys.Checkpoint(ds.Name))
		if err != nil {
			return nil, fmt.Errorf("reading checkpoint %s: %w", ds.Name, err)
		}
		if !t.IsZero() {
			out[ds.Name] = t
		}
	}
	return out, nil
}

// Task adapts the orchestrator to a scheduled task. Partial outcomes do not fail the task.
func (o *Orchestrator) Task(ctx context.Context, l logging.InternalLogger) error {
	report, err := o.Run(ctx, RunOptions{})
	if err != nil {
		l.Error("sync %s failed: %v", report.RunID, err)
		return err
	}
	l.Info("sync %s finished with outcome %s (%d synced, %d skipped, %d failed)",
		report.RunID, report.Outcome,
		report.Count(StatusSynced), report.Count(StatusSkipped), report.Count(StatusFailed))
	return nil
}
