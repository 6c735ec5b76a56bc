package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/darmiel/satellite/internal/logging"
	"github.com/darmiel/satellite/internal/store"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, time.Minute},
		{-30, time.Minute},
		{30, time.Minute},
		{60, time.Minute},
		{90, time.Minute},
		{240, time.Minute},
		{300, 5 * time.Minute},
		{301, 5 * time.Minute},
		{600, 10 * time.Minute},
		{900, 15 * time.Minute},
		{1200, 15 * time.Minute},
		{1800, 30 * time.Minute},
		{3599, 30 * time.Minute},
		{3600, 60 * time.Minute},
		{86400, 60 * time.Minute},
	}
	for _, tt := range tests {
		if got := BucketFor(tt.seconds); got != tt.want {
			t.Errorf("BucketFor(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
	}
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type tickerRecorder struct {
	mu      sync.Mutex
	tickers map[time.Duration]*fakeTicker
}

func (r *tickerRecorder) New(d time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	if r.tickers == nil {
		r.tickers = make(map[time.Duration]*fakeTicker)
	}
	r.tickers[d] = t
	return t
}

func (r *tickerRecorder) get(d time.Duration) *fakeTicker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickers[d]
}

func TestManager_TickWhileRunningIsSkipped(t *testing.T) {
	rec := &tickerRecorder{}
	m := NewManager(WithTicker(rec.New))

	var (
		runs    atomic.Int32
		started = make(chan struct{}, 10)
		release = make(chan struct{})
	)
	bucket := m.RegisterEvery("sync", 90, func(ctx context.Context, _ logging.InternalLogger) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	})
	if bucket != time.Minute {
		t.Fatalf("bucket = %s, want 1m", bucket)
	}
	m.Start()

	ticker := rec.get(time.Minute)
	if ticker == nil {
		t.Fatal("no ticker created for the task")
	}

	ticker.ch <- time.Now()
	<-started

	// the task is now running; further ticks must not start a second execution
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()

	deadline := time.After(2 * time.Second)
	for {
		st, _ := m.Status("sync")
		if st.Skipped == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("skipped = %d, want 2", st.Skipped)
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)
	m.Stop()

	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}
	if !ticker.stopped.Load() {
		t.Fatal("ticker not stopped")
	}
}

func TestManager_TriggerAndRunNow(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	started := make(chan struct{})

	m.Register("metrics", 0, func(ctx context.Context, l logging.InternalLogger) error {
		l.Info("collecting")
		close(started)
		<-release
		return nil
	})

	if err := m.Trigger("metrics"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	<-started

	if err := m.Trigger("metrics"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Trigger error = %v, want ErrAlreadyRunning", err)
	}
	if err := m.RunNow(context.Background(), "metrics"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("RunNow while running error = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	m.Stop()

	st, err := m.Status("metrics")
	if err != nil {
		t.Fatal(err)
	}
	if st.Running || st.LastResult != "success" {
		t.Fatalf("status = %+v", st)
	}
	logs, _ := m.GetLogs("metrics")
	if len(logs) == 0 {
		t.Fatal("task logs are empty")
	}

	var nf TaskNotFoundError
	if err := m.Trigger("nope"); !errors.As(err, &nf) {
		t.Fatalf("Trigger(nope) error = %v", err)
	}
}

func TestManager_RunNowReturnsTaskError(t *testing.T) {
	m := NewManager()
	m.Register("register", 0, func(context.Context, logging.InternalLogger) error {
		return errors.New("hub down")
	})
	if err := m.RunNow(context.Background(), "register"); err == nil || err.Error() != "hub down" {
		t.Fatalf("RunNow error = %v", err)
	}
	st, _ := m.Status("register")
	if st.LastResult != "failed: hub down" {
		t.Fatalf("LastResult = %q", st.LastResult)
	}
}

func TestManager_StoreLockAcrossInstances(t *testing.T) {
	shared := store.NewInMemoryStore()
	keys := store.NewKeys("satellite")
	a := NewManager(WithLocker(shared, keys.Lock))
	b := NewManager(WithLocker(shared, keys.Lock))

	release := make(chan struct{})
	started := make(chan struct{})
	a.Register("sync", 0, func(context.Context, logging.InternalLogger) error {
		close(started)
		<-release
		return nil
	})
	var bRuns atomic.Int32
	b.Register("sync", 0, func(context.Context, logging.InternalLogger) error {
		bRuns.Add(1)
		return nil
	})

	if err := a.Trigger("sync"); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := b.RunNow(context.Background(), "sync"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("instance b error = %v, want ErrAlreadyRunning", err)
	}
	st, err := b.Status("sync")
	if err != nil {
		t.Fatal(err)
	}
	if st.Running || st.Skipped != 1 || st.LastResult != "" || !st.LastRun.IsZero() {
		t.Fatalf("instance b status after lock miss = %+v", st)
	}
	close(release)
	a.Stop()

	if err := b.RunNow(context.Background(), "sync"); err != nil {
		t.Fatalf("instance b after release: %v", err)
	}
	if bRuns.Load() != 1 {
		t.Fatalf("instance b runs = %d, want 1", bRuns.Load())
	}
	if st, _ := b.Status("sync"); st.LastResult != "success" || st.Skipped != 1 {
		t.Fatalf("instance b status after run = %+v", st)
	}
}
