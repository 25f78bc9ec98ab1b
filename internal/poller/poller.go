// Package poller owns the per-category poll schedule: due times, exponential
// rate-limit backoff, jitter, and the Idle → Fetching → outcome state machine.
package poller

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/observability"
	"token-radar/internal/upstream"
)

// Clock abstracts time so tests can drive a virtual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

// Outcome classifies one poll cycle.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
)

// Fetcher fetches one payload from a resolved URL.
// Satisfied by *upstream.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// EndpointResolver finds and pins a working URL for a category.
// Satisfied by *upstream.Resolver.
type EndpointResolver interface {
	Resolve(ctx context.Context) (string, error)
	Unpin()
	Pinned() string
}

// Category wires one record category into the scheduler.
type Category struct {
	// Name identifies the category in state, logs and metrics.
	Name domain.Category
	// Resolver supplies the upstream URL.
	Resolver EndpointResolver
	// Fetcher issues the request against the resolved URL.
	Fetcher Fetcher
	// Ingest feeds a fetched body through the record pipeline. It must not
	// return errors; decode and shape surprises are zero-record cycles.
	Ingest func(ctx context.Context, body []byte)
	// Precheck, when set, can veto a cycle (e.g. missing API key). A veto is
	// logged and the category rescheduled, never fatal.
	Precheck func() error
	// Interval overrides Config.BaseInterval for this category when > 0.
	Interval time.Duration
}

// Config bounds the schedule.
type Config struct {
	// BaseInterval between successful polls. Default 30s.
	BaseInterval time.Duration
	// Tick is the coarse driving tick; per-category due times are fine
	// grained. Default 5s.
	Tick time.Duration
	// InitialBackoff after the first rate-limit. Default 30s.
	InitialBackoff time.Duration
	// MaxBackoff caps rate-limit backoff. Default 5m.
	MaxBackoff time.Duration
	// JitterFrac perturbs every scheduled delay by ±frac. Default 0.2.
	JitterFrac float64
}

func (c Config) withDefaults() Config {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 30 * time.Second
	}
	if c.Tick <= 0 {
		c.Tick = 5 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.JitterFrac <= 0 {
		c.JitterFrac = 0.2
	}
	return c
}

// State is the visible schedule state of one category.
type State struct {
	NextPollAt    time.Time     `json:"next_poll_at"`
	Backoff       time.Duration `json:"backoff_ns"`
	LastOutcome   Outcome       `json:"last_outcome,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	LastPollAt    time.Time     `json:"last_poll_at,omitempty"`
	LastSuccessAt time.Time     `json:"last_success_at,omitempty"`
	Polls         int           `json:"polls"`
	Successes     int           `json:"successes"`
	RateLimits    int           `json:"rate_limits"`
	Failures      int           `json:"failures"`
}

// Scheduler drives all categories off a single ticker. All schedule state is
// mutated only by the Run goroutine; Snapshot copies it out under the lock
// for the HTTP side.
type Scheduler struct {
	cfg        Config
	clock      Clock
	rng        *rand.Rand
	categories []*Category
	logger     *log.Logger

	mu     sync.Mutex
	states map[domain.Category]*State
}

// New creates a scheduler. Each category's first poll is due after a short
// jittered delay so multiple instances do not synchronize their bursts.
func New(cfg Config, clock Clock, categories []*Category, logger *log.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		cfg:        cfg,
		clock:      clock,
		rng:        rand.New(rand.NewSource(clock.Now().UnixNano())),
		categories: categories,
		logger:     logger,
		states:     make(map[domain.Category]*State),
	}

	now := clock.Now()
	for _, c := range categories {
		initial := time.Duration(float64(s.cfg.Tick) * s.rng.Float64())
		s.states[c.Name] = &State{NextPollAt: now.Add(initial)}
	}
	return s
}

// Run blocks until ctx is cancelled, polling each category when due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Printf("scheduler started: base interval %v, tick %v, backoff cap %v",
		s.cfg.BaseInterval, s.cfg.Tick, s.cfg.MaxBackoff)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("scheduler stopping...")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick polls every category whose due time has passed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	for _, c := range s.categories {
		s.mu.Lock()
		due := !now.Before(s.states[c.Name].NextPollAt)
		s.mu.Unlock()
		if due {
			s.pollCategory(ctx, c)
		}
	}
}

// pollCategory runs one fetch-ingest cycle and applies the outcome to the
// category's schedule. No failure path panics or escapes.
func (s *Scheduler) pollCategory(ctx context.Context, c *Category) {
	start := s.clock.Now()

	outcome, err := s.runCycle(ctx, c)
	latency := s.clock.Now().Sub(start)
	observability.RecordPoll(string(c.Name), string(outcome), latency.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[c.Name]
	st.Polls++
	st.LastPollAt = start
	st.LastOutcome = outcome
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}

	now := s.clock.Now()
	base := c.Interval
	if base <= 0 {
		base = s.cfg.BaseInterval
	}

	switch outcome {
	case OutcomeSuccess:
		st.Successes++
		st.Backoff = 0
		st.LastSuccessAt = now
		st.NextPollAt = now.Add(s.jittered(base))
		observability.RecordLastSuccess(string(c.Name), float64(now.Unix()))

	case OutcomeRateLimited:
		st.RateLimits++
		if st.Backoff <= 0 {
			st.Backoff = s.cfg.InitialBackoff
		} else {
			st.Backoff *= 2
		}
		if st.Backoff > s.cfg.MaxBackoff {
			st.Backoff = s.cfg.MaxBackoff
		}
		st.NextPollAt = now.Add(s.jittered(base) + st.Backoff)
		s.logger.Printf("[%s] rate limited, backoff %v", c.Name, st.Backoff)

	case OutcomeFailed:
		st.Failures++
		// The pinned route may have rotted; re-resolve next cycle.
		c.Resolver.Unpin()
		st.NextPollAt = now.Add(s.jittered(base))
		s.logger.Printf("[%s] poll failed: %v", c.Name, err)

	case OutcomeSkipped:
		st.NextPollAt = now.Add(s.jittered(base))
		s.logger.Printf("[%s] poll skipped: %v", c.Name, err)
	}

	observability.UpdateBackoff(string(c.Name), st.Backoff.Seconds())
}

// runCycle performs precheck, resolve, fetch, ingest.
func (s *Scheduler) runCycle(ctx context.Context, c *Category) (Outcome, error) {
	if c.Precheck != nil {
		if err := c.Precheck(); err != nil {
			return OutcomeSkipped, err
		}
	}

	url, err := c.Resolver.Resolve(ctx)
	if err != nil {
		return OutcomeFailed, err
	}

	body, err := c.Fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, upstream.ErrRateLimited) {
			return OutcomeRateLimited, err
		}
		return OutcomeFailed, err
	}

	c.Ingest(ctx, body)
	return OutcomeSuccess, nil
}

// jittered perturbs d by ±JitterFrac.
func (s *Scheduler) jittered(d time.Duration) time.Duration {
	frac := 1 + s.cfg.JitterFrac*(2*s.rng.Float64()-1)
	return time.Duration(float64(d) * frac)
}

// Snapshot returns a copy of all category states.
func (s *Scheduler) Snapshot() map[domain.Category]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Category]State, len(s.states))
	for name, st := range s.states {
		out[name] = *st
	}
	return out
}
