// Package jobs runs maintenance tasks, such as database backups, on a fixed
// interval in the background.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of periodic work. A failed run is retried with backoff up
// to MaxAttempts times before waiting for the next tick.
type Task struct {
	Name        string
	Interval    time.Duration
	MaxAttempts int
	Run         func(ctx context.Context) error
}

// BackoffDuration returns the exponential wait before retry attempt n,
// capped at five minutes.
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	d := time.Duration(1<<uint(min(attempt, 16))) * time.Second
	return min(d, 5*time.Minute)
}

type Scheduler struct {
	tasks   []Task
	logger  *zap.Logger
	backoff func(attempt int) time.Duration

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(s *Scheduler) { s.backoff = fn }
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{logger: zap.NewNop(), backoff: BackoffDuration, stop: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. It must be called before Start.
func (s *Scheduler) Add(t Task) {
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 1
	}
	s.tasks = append(s.tasks, t)
}

// Start launches one goroutine per task with a positive interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		if t.Interval <= 0 {
			s.logger.Info("task disabled", zap.String("task", t.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

// Stop signals the tasks to stop and waits for running ones to return. It
// is safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := t.Run(ctx)
		if err == nil {
			s.logger.Info("task completed", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
			return
		}
		if attempt >= t.MaxAttempts {
			s.logger.Error("task failed", zap.String("task", t.Name), zap.Int("attempts", attempt), zap.Error(err))
			return
		}

		wait := s.backoff(attempt)
		s.logger.Warn("task failed, retrying", zap.String("task", t.Name), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
