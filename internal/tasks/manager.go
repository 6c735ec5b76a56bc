package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const MaxLogsPerTask = 1000

const DefaultTimeout = 5 * time.Minute

type ManagerOption func(m *Manager)

func WithTicker(f TickerFunc) ManagerOption {
	return func(m *Manager) { m.newTicker = f }
}

// WithLocker adds a store lock per task so that only one satellite instance runs it at a time.
func WithLocker(l Locker, keyFor func(name string) string) ManagerOption {
	return func(m *Manager) {
		m.locker = l
		m.lockKey = keyFor
	}
}

func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

type Manager struct {
	tasks sync.Map

	newTicker TickerFunc
	locker    Locker
	lockKey   func(name string) string
	timeout   time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		newTicker: NewTimeTicker,
		timeout:   DefaultTimeout,
		lockKey:   func(name string) string { return "lock:" + name },
	}
	for _, o := range opts {
		o(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Register adds a task. An interval of 0 registers a task that only runs on demand.
// Tasks registered after Start are scheduled immediately.
func (m *Manager) Register(name string, interval time.Duration, fn TaskFunc) {
	task := &RunnableTask{
		Name:         name,
		Interval:     interval,
		Handler:      fn,
		Logs:         make([]LogEntry, 0),
		registeredAt: time.Now(),
	}
	m.tasks.Store(name, task)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started && interval > 0 {
		m.schedule(task)
	}
}

// RegisterEvery schedules fn on the bucket matching the configured interval in seconds.
func (m *Manager) RegisterEvery(name string, seconds int, fn TaskFunc) time.Duration {
	bucket := BucketFor(seconds)
	m.Register(name, bucket, fn)
	return bucket
}

// Start begins ticking all scheduled tasks. It is a no-op when already started.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.tasks.Range(func(_, value any) bool {
		task := value.(*RunnableTask)
		if task.Interval > 0 {
			m.schedule(task)
		}
		return true
	})
}

// Stop cancels running tasks and waits for them and all schedulers to return.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) lookup(name string) (*RunnableTask, error) {
	t, ok := m.tasks.Load(name)
	if !ok {
		return nil, TaskNotFoundError{Name: name}
	}
	return t.(*RunnableTask), nil
}

func (m *Manager) run(ctx context.Context, task *RunnableTask) error {
	return task.Run(ctx, m.timeout, m.locker, m.lockKey(task.Name))
}

// Trigger starts the task in the background. It fails fast with ErrAlreadyRunning
// when the task is running already.
func (m *Manager) Trigger(name string) error {
	task, err := m.lookup(name)
	if err != nil {
		return err
	}
	if task.Status().Running {
		return ErrAlreadyRunning
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.run(m.ctx, task)
	}()
	return nil
}

// RunNow executes the task synchronously and returns its error.
func (m *Manager) RunNow(ctx context.Context, name string) error {
	task, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.run(ctx, task)
}

func (m *Manager) ListStatus() []TaskStatus {
	var list []TaskStatus
	m.tasks.Range(func(key, value any) bool {
		task := value.(*RunnableTask)
		list = append(list, task.Status())
		return true
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (m *Manager) Status(name string) (TaskStatus, error) {
	task, err := m.lookup(name)
	if err != nil {
		return TaskStatus{}, err
	}
	return task.Status(), nil
}

func (m *Manager) GetLogs(name string) ([]LogEntry, error) {
	task, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return task.GetLogs(), nil
}

// schedule must be called with m.mu held.
func (m *Manager) schedule(task *RunnableTask) {
	ticker := m.newTicker(task.Interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()

		l := log.With().Str("task", task.Name).Dur("interval", task.Interval).Logger()
		l.Debug().Msg("task scheduled")

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C():
				// a tick while the task runs is dropped by the guard in Run
				m.wg.Add(1)
				go func() {
					defer m.wg.Done()
					_ = m.run(m.ctx, task)
				}()
			}
		}
	}()
}
