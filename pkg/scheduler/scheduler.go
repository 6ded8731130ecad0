package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
)

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // zero means no per-run deadline
	Lease    Lease         // optional, skips the run when another instance holds it
	LeaseTTL time.Duration
	Fn       func(context.Context) error
}

// TaskOption configures a task
type TaskOption func(*Task)

// WithTimeout bounds every run of the task
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) {
		t.Timeout = d
	}
}

// WithLease makes each run take lease first. The lease expires after ttl
// even if the holder dies mid-run.
func WithLease(lease Lease, ttl time.Duration) TaskOption {
	return func(t *Task) {
		t.Lease = lease
		t.LeaseTTL = ttl
	}
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logging.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:   make([]*Task, 0),
		running: false,
		logger:  logging.Default,
	}
}

// AddTask adds a task to the scheduler
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error, opts ...TaskOption) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	task := &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	}
	for _, opt := range opts {
		opt(task)
	}
	if task.Lease != nil && task.LeaseTTL <= 0 {
		task.LeaseTTL = interval
	}
	s.tasks = append(s.tasks, task)
}

// Tasks returns the names of the registered tasks
func (s *Scheduler) Tasks() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name)
	}
	return names
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, task)
	}

	s.logger.Info("Scheduler started with %d tasks", len(s.tasks))
}

// Stop stops the scheduler and waits for in-flight runs to return
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mutex.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// runTask runs a task at the specified interval
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	// Run the task immediately on startup
	s.logger.Debug("Running task %s immediately on startup", task.Name)
	s.runOnce(ctx, task)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, task)
		case <-ctx.Done():
			s.logger.Debug("Task %s stopped", task.Name)
			return
		}
	}
}

// runOnce runs one tick of task. A tick that overruns its interval delays the
// next one instead of overlapping it.
func (s *Scheduler) runOnce(ctx context.Context, task *Task) {
	if task.Lease != nil {
		held, err := task.Lease.Acquire(ctx, task.Name, task.LeaseTTL)
		switch {
		case err != nil:
			// Runs are idempotent, so an unreachable lease store is not a reason to stop
			s.logger.Warn("Lease for task %s unavailable, running anyway: %v", task.Name, err)
		case !held:
			s.logger.Debug("Task %s is held by another instance, skipping", task.Name)
			return
		default:
			defer func() {
				if err := task.Lease.Release(context.WithoutCancel(ctx), task.Name); err != nil {
					s.logger.Warn("Error releasing lease for task %s: %v", task.Name, err)
				}
			}()
		}
	}

	runCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	if err := task.Fn(runCtx); err != nil {
		s.logger.Error("Error running task %s: %v", task.Name, err)
	}
}
