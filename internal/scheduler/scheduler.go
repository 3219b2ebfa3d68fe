// Package scheduler runs recurring jobs, each on its own timer.
//
// A job run is skipped when the previous run of the same job is still in
// flight. Jobs belong to a group; pausing a group cancels its in-flight runs
// and stops its timers until the group is resumed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bot-fleet-engine/internal/metrics"
)

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrNotRunning is returned by Stop on a stopped scheduler
	ErrNotRunning = errors.New("scheduler not running")
	// ErrUnknownGroup is returned when pausing or resuming a group with no jobs
	ErrUnknownGroup = errors.New("unknown job group")
)

// Job is one recurring task
type Job struct {
	Name     string
	Interval time.Duration
	// Jitter adds a random [0, Jitter] delay to every cycle
	Jitter     time.Duration
	Group      string
	Run        func(ctx context.Context) error
	RunOnStart bool
}

// JobStats is a point-in-time view of one job
type JobStats struct {
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Skips     int64     `json:"skips"`
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type jobState struct {
	job      Job
	inFlight atomic.Bool
	runs     atomic.Int64
	failures atomic.Int64
	skips    atomic.Int64

	mu        sync.Mutex
	lastRun   time.Time
	lastError string
}

type group struct {
	paused bool
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler owns the job loops
type Scheduler struct {
	logger  zerolog.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	jobs    []*jobState
	groups  map[string]*group
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a scheduler. m may be nil.
func New(logger zerolog.Logger, m *metrics.Registry) *Scheduler {
	return &Scheduler{
		logger:  logger.With().Str("component", "Scheduler").Logger(),
		metrics: m,
		groups:  make(map[string]*group),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add registers a job. Jobs added while running start immediately unless their group is paused.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	js := &jobState{job: job}
	s.jobs = append(s.jobs, js)

	g, ok := s.groups[job.Group]
	if !ok {
		g = &group{}
		s.groups[job.Group] = g
	}

	if s.running && !g.paused {
		if g.cancel == nil {
			s.startGroupLocked(job.Group, g)
		} else {
			s.wg.Add(1)
			go s.loop(g.ctx, js)
		}
	}
	return nil
}

// Start launches every job loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for name, g := range s.groups {
		if !g.paused {
			s.startGroupLocked(name, g)
		}
	}

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop cancels every loop and waits for in-flight runs to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	for _, g := range s.groups {
		g.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// PauseGroup stops the group's loops and cancels their in-flight runs
func (s *Scheduler) PauseGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	if g.paused {
		return nil
	}
	g.paused = true
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	s.logger.Info().Str("group", name).Msg("Job group paused")
	return nil
}

// ResumeGroup restarts a paused group
func (s *Scheduler) ResumeGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	if !g.paused {
		return nil
	}
	g.paused = false
	if s.running {
		s.startGroupLocked(name, g)
	}
	s.logger.Info().Str("group", name).Msg("Job group resumed")
	return nil
}

// IsGroupPaused reports whether a group is paused
func (s *Scheduler) IsGroupPaused(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	return ok && g.paused
}

// Stats returns a snapshot of every job, sorted by name
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	jobs := append([]*jobState(nil), s.jobs...)
	paused := make(map[string]bool, len(s.groups))
	for name, g := range s.groups {
		paused[name] = g.paused
	}
	s.mu.Unlock()

	out := make([]JobStats, 0, len(jobs))
	for _, js := range jobs {
		js.mu.Lock()
		st := JobStats{
			Name:      js.job.Name,
			Group:     js.job.Group,
			Runs:      js.runs.Load(),
			Failures:  js.failures.Load(),
			Skips:     js.skips.Load(),
			Running:   js.inFlight.Load(),
			Paused:    paused[js.job.Group],
			LastRun:   js.lastRun,
			LastError: js.lastError,
		}
		js.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) startGroupLocked(name string, g *group) {
	gctx, cancel := context.WithCancel(s.ctx)
	g.ctx, g.cancel = gctx, cancel
	for _, js := range s.jobs {
		if js.job.Group == name {
			s.wg.Add(1)
			go s.loop(gctx, js)
		}
	}
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	defer s.wg.Done()

	var runs sync.WaitGroup
	defer runs.Wait()

	if js.job.RunOnStart {
		s.trigger(ctx, js, &runs)
	}

	timer := time.NewTimer(s.nextDelay(js.job))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.trigger(ctx, js, &runs)
			timer.Reset(s.nextDelay(js.job))
		}
	}
}

func (s *Scheduler) nextDelay(job Job) time.Duration {
	if job.Jitter <= 0 {
		return job.Interval
	}
	s.rngMu.Lock()
	extra := time.Duration(s.rng.Int63n(int64(job.Jitter) + 1))
	s.rngMu.Unlock()
	return job.Interval + extra
}

// trigger starts a run unless the previous one is still in flight
func (s *Scheduler) trigger(ctx context.Context, js *jobState, runs *sync.WaitGroup) {
	if !js.inFlight.CompareAndSwap(false, true) {
		js.skips.Add(1)
		s.metrics.RecordSkip(js.job.Name)
		s.logger.Debug().Str("job", js.job.Name).Msg("Previous run still in flight, skipping")
		return
	}

	runs.Add(1)
	go func() {
		defer runs.Done()
		defer js.inFlight.Store(false)
		s.execute(ctx, js)
	}()
}

func (s *Scheduler) execute(ctx context.Context, js *jobState) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error().Str("job", js.job.Name).Interface("panic", r).Msg("Job panic recovered")
		}

		js.runs.Add(1)
		js.mu.Lock()
		js.lastRun = start
		js.lastError = ""
		if err != nil {
			js.lastError = err.Error()
		}
		js.mu.Unlock()

		if err != nil {
			js.failures.Add(1)
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Str("job", js.job.Name).Msg("Job run failed")
			}
		}
		s.metrics.ObserveJob(js.job.Name, time.Since(start), err)
	}()

	err = js.job.Run(ctx)
}
