package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bot-fleet-engine/internal/metrics"
)

func newTestScheduler() *Scheduler {
	return New(zerolog.Nop(), metrics.NewRegistry())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}

func statsFor(s *Scheduler, name string) JobStats {
	for _, st := range s.Stats() {
		if st.Name == name {
			return st
		}
	}
	return JobStats{}
}

// TestJobRunsRepeatedly tests that a job fires on its interval
func TestJobRunsRepeatedly(t *testing.T) {
	s := newTestScheduler()
	var count atomic.Int32

	s.Add(Job{Name: "tick", Interval: 10 * time.Millisecond, Group: "processing", Run: func(ctx context.Context) error {
		count.Add(1)
		return nil
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 3 })

	if err := s.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}

	after := count.Load()
	time.Sleep(40 * time.Millisecond)
	if count.Load() != after {
		t.Error("Expected no runs after Stop")
	}
}

// TestStartTwice tests the already-running error
func TestStartTwice(t *testing.T) {
	s := newTestScheduler()
	s.Start(context.Background())
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

// TestStopWhenStopped tests the not-running error
func TestStopWhenStopped(t *testing.T) {
	if err := newTestScheduler().Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

// TestAddRejectsInvalidJobs tests job validation
func TestAddRejectsInvalidJobs(t *testing.T) {
	s := newTestScheduler()
	run := func(context.Context) error { return nil }

	if err := s.Add(Job{Interval: time.Second, Run: run}); err == nil {
		t.Error("Expected error for missing name")
	}
	if err := s.Add(Job{Name: "x", Run: run}); err == nil {
		t.Error("Expected error for zero interval")
	}
	if err := s.Add(Job{Name: "x", Interval: time.Second}); err == nil {
		t.Error("Expected error for missing run function")
	}
}

// TestOverlappingRunIsSkipped tests skip-if-running
func TestOverlappingRunIsSkipped(t *testing.T) {
	s := newTestScheduler()
	release := make(chan struct{})
	var started atomic.Int32

	s.Add(Job{Name: "slow", Interval: 5 * time.Millisecond, Group: "trading", RunOnStart: true, Run: func(ctx context.Context) error {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}})

	s.Start(context.Background())
	waitFor(t, time.Second, func() bool { return statsFor(s, "slow").Skips >= 2 })

	if started.Load() != 1 {
		t.Errorf("Expected 1 concurrent start, got %d", started.Load())
	}
	close(release)
	s.Stop()
}

// TestPauseGroupCancelsInFlightRun tests that pausing cancels the running job immediately
func TestPauseGroupCancelsInFlightRun(t *testing.T) {
	s := newTestScheduler()
	cancelled := make(chan struct{})
	var persisted atomic.Int32

	s.Add(Job{Name: "execute", Interval: time.Hour, Group: "trading", RunOnStart: true, Run: func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}})
	s.Add(Job{Name: "persist", Interval: 10 * time.Millisecond, Group: "persistence", Run: func(ctx context.Context) error {
		persisted.Add(1)
		return nil
	}})

	s.Start(context.Background())
	defer s.Stop()
	waitFor(t, time.Second, func() bool { return statsFor(s, "execute").Running })

	if err := s.PauseGroup("trading"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("Expected in-flight run to be cancelled")
	}

	if !s.IsGroupPaused("trading") {
		t.Error("Expected trading group to be paused")
	}
	before := persisted.Load()
	waitFor(t, time.Second, func() bool { return persisted.Load() > before })
}

// TestResumeGroup tests that a resumed group runs again
func TestResumeGroup(t *testing.T) {
	s := newTestScheduler()
	var count atomic.Int32

	s.Add(Job{Name: "tick", Interval: 10 * time.Millisecond, Group: "processing", Run: func(ctx context.Context) error {
		count.Add(1)
		return nil
	}})
	s.PauseGroup("processing")
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(40 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("Expected no runs while paused, got %d", count.Load())
	}

	if err := s.ResumeGroup("processing"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 1 })
}

// TestUnknownGroup tests pausing a group with no jobs
func TestUnknownGroup(t *testing.T) {
	if err := newTestScheduler().PauseGroup("nope"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Expected ErrUnknownGroup, got %v", err)
	}
}

// TestPanicIsRecovered tests that a panicking job is counted as a failure and keeps running
func TestPanicIsRecovered(t *testing.T) {
	s := newTestScheduler()
	var count atomic.Int32

	s.Add(Job{Name: "boom", Interval: 10 * time.Millisecond, Group: "analysis", Run: func(ctx context.Context) error {
		count.Add(1)
		panic("bad input")
	}})

	s.Start(context.Background())
	waitFor(t, time.Second, func() bool { return count.Load() >= 2 })
	s.Stop()

	st := statsFor(s, "boom")
	if st.Failures < 2 {
		t.Errorf("Expected at least 2 failures, got %d", st.Failures)
	}
	if st.LastError != "panic: bad input" {
		t.Errorf("Expected panic error recorded, got %q", st.LastError)
	}
}

// TestJitterBounds tests that jittered delays stay in range
func TestJitterBounds(t *testing.T) {
	s := newTestScheduler()
	job := Job{Interval: 30 * time.Second, Jitter: 30 * time.Second}

	for i := 0; i < 200; i++ {
		d := s.nextDelay(job)
		if d < 30*time.Second || d > 60*time.Second {
			t.Fatalf("Expected delay in [30s, 60s], got %v", d)
		}
	}
	if d := s.nextDelay(Job{Interval: 2 * time.Second}); d != 2*time.Second {
		t.Errorf("Expected 2s without jitter, got %v", d)
	}
}
