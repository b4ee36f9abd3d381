package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cinelog/internal/types"
)

// Runner defaults.
const (
	// DefaultCheckInterval is how often the runner wakes up to see whether
	// a task's fire time has passed.
	DefaultCheckInterval = 30 * time.Second
	// DefaultLockTTL bounds how long a run lock survives a crashed worker.
	DefaultLockTTL = time.Hour
)

// JobFunc executes one job pass and returns the number of notifications
// created.
type JobFunc func(ctx context.Context) (int, error)

// Schedule computes a task's next fire time, always strictly after now.
// All schedules are UTC wall-clock times.
type Schedule interface {
	Next(now time.Time) time.Time
}

// DailySchedule fires once a day at a fixed UTC hour.
type DailySchedule struct {
	Hour int
}

// Next returns the next occurrence of the hour strictly after now.
func (s DailySchedule) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// WeeklySchedule fires once a week at a fixed UTC weekday and hour.
type WeeklySchedule struct {
	Weekday time.Weekday
	Hour    int
}

// Next returns the next occurrence of the weekday/hour strictly after now.
func (s WeeklySchedule) Next(now time.Time) time.Time {
	now = now.UTC()
	daysAhead := (int(s.Weekday) - int(now.Weekday()) + 7) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+daysAhead, s.Hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// RunLocker abstracts the per-job run lock. The lock keeps a job from
// running twice at once when more than one notifier process shares a
// database.
type RunLocker interface {
	Acquire(ctx context.Context, jobName string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobName string, workerID string) error
}

// RunRecorder abstracts job run history.
type RunRecorder interface {
	Start(ctx context.Context, jobName string) (int64, error)
	Finish(ctx context.Context, id int64, status string, created int, jobErr error) error
}

// task is the runner's internal per-task state, guarded by Runner.mu.
type task struct {
	name     string
	schedule Schedule
	run      JobFunc

	running     bool
	nextFire    time.Time
	lastRun     *time.Time
	lastErr     string
	lastCreated int
}

// Runner fires registered tasks on their wall-clock schedules. Each
// execution takes a database run lock, records an entry in job history, and
// releases the lock when done. Task failures are logged and recorded, never
// fatal: the runner keeps ticking and the other tasks keep their schedules.
type Runner struct {
	locks   RunLocker
	history RunRecorder

	workerID      string
	lockTTL       time.Duration
	checkInterval time.Duration
	clock         types.Clock
	logger        *slog.Logger

	mu      sync.Mutex
	tasks   []*task
	byName  map[string]*task
	started bool
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup
}

// RunnerConfig holds the configuration for creating a Runner.
type RunnerConfig struct {
	Locks   RunLocker
	History RunRecorder

	// LockTTL bounds how long a run lock outlives a crashed worker; zero
	// means the default.
	LockTTL time.Duration
	// CheckInterval is the scheduling tick; zero means the default.
	CheckInterval time.Duration
	Clock         types.Clock
	Logger        *slog.Logger
}

// NewRunner creates a Runner with the given configuration. Tasks are added
// with Register before Start.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	checkInterval := cfg.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Runner{
		locks:         cfg.Locks,
		history:       cfg.History,
		workerID:      "worker_" + uuid.NewString(),
		lockTTL:       lockTTL,
		checkInterval: checkInterval,
		clock:         clock,
		logger:        logger,
		byName:        make(map[string]*task),
	}
}

// Register adds a named task with its schedule. Registering after Start is
// not supported.
func (r *Runner) Register(name string, schedule Schedule, run JobFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &task{
		name:     name,
		schedule: schedule,
		run:      run,
		nextFire: schedule.Next(r.clock.Now()),
	}
	r.tasks = append(r.tasks, t)
	r.byName[name] = t
}

// Start launches the scheduling loop. It returns immediately; the loop runs
// until Stop is called or the context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	r.runCtx, r.cancel = context.WithCancel(ctx)
	r.started = true

	now := r.clock.Now()
	for _, t := range r.tasks {
		t.nextFire = t.schedule.Next(now)
		r.logger.InfoContext(ctx, "task scheduled",
			"task", t.name,
			"next_fire", t.nextFire.Format(time.RFC3339),
		)
	}

	r.wg.Add(1)
	go r.loop()

	r.logger.InfoContext(ctx, "scheduler started",
		"worker_id", r.workerID,
		"tasks", len(r.tasks),
	)
	return nil
}

// Stop cancels the loop and waits for in-flight tasks to finish, up to the
// context deadline.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.InfoContext(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		r.logger.ErrorContext(ctx, "scheduler stop timed out with tasks in flight")
		return ctx.Err()
	}
}

// loop is the scheduling tick. Wall-clock fire times are re-evaluated every
// tick rather than armed as timers, so clock adjustments and laptop sleeps
// cannot strand a task.
func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	r.fireDue()
	for {
		select {
		case <-r.runCtx.Done():
			return
		case <-ticker.C:
			r.fireDue()
		}
	}
}

// fireDue launches every task whose fire time has passed and is not already
// running.
func (r *Runner) fireDue() {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.running || now.Before(t.nextFire) {
			continue
		}
		t.running = true
		t.nextFire = t.schedule.Next(now)
		r.wg.Add(1)
		go r.execute(t)
	}
}

// RunNow triggers an immediate execution of a task outside its schedule.
// Returns a conflict error when the task is already running.
func (r *Runner) RunNow(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byName[name]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundTask, fmt.Sprintf("unknown task %q", name), nil)
	}
	if t.running {
		return types.NewAppError(types.ErrCodeConflictTaskRunning, fmt.Sprintf("task %q is already running", name), nil)
	}
	if r.runCtx == nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "scheduler not started", nil)
	}

	t.running = true
	r.wg.Add(1)
	go r.execute(t)
	return nil
}

// Status returns a snapshot of every task in registration order.
func (r *Runner) Status() []TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]TaskStatus, len(r.tasks))
	for i, t := range r.tasks {
		statuses[i] = TaskStatus{
			Name:        t.name,
			Running:     t.running,
			NextFire:    t.nextFire,
			LastRun:     t.lastRun,
			LastError:   t.lastErr,
			LastCreated: t.lastCreated,
		}
	}
	return statuses
}

// execute runs one task pass: lock, record, run, record, unlock. The caller
// must have marked the task running and incremented the WaitGroup.
func (r *Runner) execute(t *task) {
	defer r.wg.Done()

	ctx := r.runCtx
	// Cleanup writes must land even when the run context has been
	// cancelled by Stop; otherwise the lock lingers until its TTL and
	// the history row stays in running.
	cleanupCtx := context.WithoutCancel(ctx)
	startedAt := r.clock.Now()

	defer func() {
		r.mu.Lock()
		t.running = false
		r.mu.Unlock()
	}()

	acquired, err := r.locks.Acquire(ctx, t.name, r.workerID, r.lockTTL)
	if err != nil {
		r.logger.ErrorContext(ctx, "run lock acquisition failed",
			"task", t.name,
			"error", err,
		)
		r.recordOutcome(t, startedAt, 0, err)
		return
	}
	if !acquired {
		// Another worker is on it. Not a failure; just yield this slot.
		r.logger.InfoContext(ctx, "run lock held elsewhere, skipping",
			"task", t.name,
		)
		return
	}
	defer func() {
		if err := r.locks.Release(cleanupCtx, t.name, r.workerID); err != nil {
			r.logger.ErrorContext(cleanupCtx, "run lock release failed",
				"task", t.name,
				"error", err,
			)
		}
	}()

	historyID, err := r.history.Start(ctx, t.name)
	if err != nil {
		r.logger.ErrorContext(ctx, "job history start failed",
			"task", t.name,
			"error", err,
		)
		r.recordOutcome(t, startedAt, 0, err)
		return
	}

	r.logger.InfoContext(ctx, "task run started",
		"task", t.name,
		"history_id", historyID,
	)

	created, runErr := t.run(ctx)

	status := RunStatusSuccess
	if runErr != nil {
		status = RunStatusFailed
		r.logger.ErrorContext(ctx, "task run failed",
			"task", t.name,
			"error", runErr,
		)
	} else {
		r.logger.InfoContext(ctx, "task run complete",
			"task", t.name,
			"created", created,
			"duration", r.clock.Now().Sub(startedAt).String(),
		)
	}

	if err := r.history.Finish(cleanupCtx, historyID, status, created, runErr); err != nil {
		r.logger.ErrorContext(cleanupCtx, "job history finish failed",
			"task", t.name,
			"history_id", historyID,
			"error", err,
		)
	}

	r.recordOutcome(t, startedAt, created, runErr)
}

// recordOutcome updates the task's ops-visible state after a run attempt.
func (r *Runner) recordOutcome(t *task, startedAt time.Time, created int, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.lastRun = &startedAt
	t.lastCreated = created
	if runErr != nil {
		t.lastErr = runErr.Error()
	} else {
		t.lastErr = ""
	}
}
