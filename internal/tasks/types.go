package tasks

import (
	"context"
	"time"

	"github.com/darmiel/satellite/internal/logging"
)

// TaskFunc is the unit of work.
// It receives a logger which also stores the output in the task's log buffer.
type TaskFunc func(ctx context.Context, logger logging.InternalLogger) error

type TaskStatus struct {
	Name            string    `json:"name,omitempty"`
	IntervalSeconds int64     `json:"interval_seconds,omitempty"`
	Running         bool      `json:"running"`
	LastRun         time.Time `json:"last_run"`
	LastResult      string    `json:"last_result,omitempty"`
	LastDuration    string    `json:"last_duration,omitempty"`
	NextRun         time.Time `json:"next_run"`
	Skipped         int64     `json:"skipped,omitempty"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Ticker is the subset of time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Locker guards a task across satellite instances sharing one store.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}
