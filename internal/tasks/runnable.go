package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

type RunnableTask struct {
	Name     string
	Interval time.Duration
	Handler  TaskFunc

	registeredAt time.Time

	mu           sync.RWMutex
	Running      bool
	LastRun      time.Time
	LastResult   string
	LastDuration time.Duration
	Skipped      int64
	Logs         []LogEntry
}

// tryStart flips Running under the lock. Only one caller can win.
func (t *RunnableTask) tryStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Running {
		t.Skipped++
		return false
	}
	t.Running = true
	t.Logs = make([]LogEntry, 0)
	return true
}

// skip ends a run that never executed. The previous result is kept.
func (t *RunnableTask) skip() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Running = false
	t.Skipped++
}

func (t *RunnableTask) finish(err error, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Running = false
	t.LastRun = time.Now()
	t.LastDuration = duration
	if err != nil {
		t.LastResult = fmt.Sprintf("failed: %v", err)
	} else {
		t.LastResult = "success"
	}
}

// Run executes the task unless it is already running, in which case it returns
// ErrAlreadyRunning without waiting.
func (t *RunnableTask) Run(ctx context.Context, timeout time.Duration, locker Locker, lockKey string) error {
	l := log.With().Str("task", t.Name).Logger()

	if !t.tryStart() {
		l.Warn().Msg("task is already running, skipping execution")
		return ErrAlreadyRunning
	}

	var (
		err      error
		duration time.Duration
		skipped  bool
	)
	defer func() {
		if skipped {
			t.skip()
			return
		}
		t.finish(err, duration)
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if locker != nil {
		token := xid.New().String()
		var ok bool
		ok, err = locker.TryLock(ctx, lockKey, token, timeout)
		if err != nil {
			err = fmt.Errorf("acquiring task lock: %w", err)
			l.Error().Err(err).Msg("task not started")
			return err
		}
		if !ok {
			skipped = true
			l.Warn().Msg("task is running on another instance, skipping execution")
			return ErrAlreadyRunning
		}
		defer func() {
			// the run context may already be done
			if uerr := locker.Unlock(context.WithoutCancel(ctx), lockKey, token); uerr != nil {
				l.Warn().Err(uerr).Msg("failed to release task lock")
			}
		}()
	}

	taskLogger := newRunLogger(t, l)
	taskLogger.Info("starting task execution")

	start := time.Now()
	err = t.Handler(ctx, taskLogger)
	duration = time.Since(start)

	if err != nil {
		taskLogger.Error("task failed after %s: %v", duration, err)
	} else {
		taskLogger.Info("task completed successfully in %s", duration)
	}
	return err
}

func (t *RunnableTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var nextTime time.Time
	if t.Interval > 0 {
		if !t.LastRun.IsZero() {
			nextTime = t.LastRun.Add(t.Interval)
		} else {
			nextTime = t.registeredAt.Add(t.Interval)
		}
	}

	s := TaskStatus{
		Name:            t.Name,
		IntervalSeconds: int64(t.Interval / time.Second),
		Running:         t.Running,
		LastRun:         t.LastRun,
		LastResult:      t.LastResult,
		NextRun:         nextTime,
		Skipped:         t.Skipped,
	}
	if t.LastDuration > 0 {
		s.LastDuration = t.LastDuration.String()
	}
	return s
}

func (t *RunnableTask) GetLogs() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cpy := make([]LogEntry, len(t.Logs))
	copy(cpy, t.Logs)
	return cpy
}

func (t *RunnableTask) AppendLog(level, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Logs = append(t.Logs, LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	})

	if len(t.Logs) > MaxLogsPerTask {
		t.Logs = t.Logs[1:]
	}
}
