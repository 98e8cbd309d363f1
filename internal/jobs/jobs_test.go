package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/garnizeh/medequip/internal/jobs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBackoffDuration(t *testing.T) {
	cases := map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		3:  8 * time.Second,
		20: 5 * time.Minute,
	}
	for attempt, want := range cases {
		if got := jobs.BackoffDuration(attempt); got != want {
			t.Fatalf("attempt %d: expected %v got %v", attempt, want, got)
		}
	}
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{})

	s := jobs.NewScheduler()
	s.Add(jobs.Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			if runs.Add(1) == 3 {
				close(done)
			}
			return nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("task ran %d times, expected at least 3", runs.Load())
	}
}

func TestScheduler_RetriesUpToMaxAttempts(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{})

	s := jobs.NewScheduler(jobs.WithBackoff(func(int) time.Duration { return time.Millisecond }))
	s.Add(jobs.Task{
		Name:        "backup",
		Interval:    5 * time.Millisecond,
		MaxAttempts: 3,
		Run: func(context.Context) error {
			if runs.Add(1) == 3 {
				close(done)
				return nil
			}
			return errors.New("disk full")
		},
	})
	s.Start(context.Background())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a third attempt, got %d", runs.Load())
	}
	s.Stop()
	s.Stop()
}

func TestScheduler_DisabledAndCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := jobs.NewScheduler()
	s.Add(jobs.Task{Name: "off", Run: func(context.Context) error {
		t.Errorf("disabled task ran")
		return nil
	}})
	s.Add(jobs.Task{Name: "slow", Interval: time.Hour, Run: func(context.Context) error { return nil }})
	s.Start(ctx)

	cancel()
	s.Stop()
}
