package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for origin cooldown tracking.
var (
	originConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_origin_consecutive_failures",
		Help: "Consecutive failed requests to the catalog origin",
	})

	originBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_origin_blocks_total",
		Help: "Total number of origin requests held back by an active cooldown",
	})

	originCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_origin_cooldowns_total",
		Help: "Total number of cooldowns started by reason",
	}, []string{"reason"})
)

// Config holds cooldown tuning.
type Config struct {
	FailureThreshold int
	BaseCooldown     time.Duration
	MaxCooldown      time.Duration
}

// DefaultConfig returns the default cooldown configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		BaseCooldown:     DefaultBaseCooldown,
		MaxCooldown:      DefaultMaxCooldown,
	}
}

// Tracker records origin failures and decides whether a request may go out.
// A nil *Tracker allows every request.
type Tracker struct {
	mu     sync.Mutex
	state  State
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new tracker.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = DefaultBaseCooldown
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = DefaultMaxCooldown
	}
	if cfg.MaxCooldown < cfg.BaseCooldown {
		cfg.MaxCooldown = cfg.BaseCooldown
	}
	return &Tracker{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// GetState returns a copy of the current state.
func (t *Tracker) GetState() State {
	if t == nil {
		return State{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ShouldAllowRequest reports whether a request may be sent now, and if not,
// how long the cooldown still lasts.
func (t *Tracker) ShouldAllowRequest() (bool, time.Duration) {
	if t == nil {
		return true, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.state.NeedsCooldown(now) {
		wait := t.state.TimeUntilReset(now)
		t.logger.Debug().
			Int("consecutive_failures", t.state.ConsecutiveFailures).
			Dur("wait_duration", wait).
			Msg("Origin cooldown active - holding request")
		originBlocksTotal.Inc()
		return false, wait
	}
	return true, 0
}

// RecordSuccess clears failures and any cooldown.
func (t *Tracker) RecordSuccess() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.ConsecutiveFailures > 0 {
		t.logger.Info().
			Int("consecutive_failures", t.state.ConsecutiveFailures).
			Msg("Origin recovered")
	}
	t.state = State{LastUpdate: t.now()}
	originConsecutiveFailures.Set(0)
}

// RecordFailure counts a failed request. Once the failure threshold is
// reached a cooldown starts, doubling with every further failure.
func (t *Tracker) RecordFailure() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.state.ConsecutiveFailures++
	t.state.LastUpdate = now
	originConsecutiveFailures.Set(float64(t.state.ConsecutiveFailures))

	over := t.state.ConsecutiveFailures - t.config.FailureThreshold
	if over < 0 {
		return
	}

	cooldown := t.config.BaseCooldown
	for i := 0; i < over && cooldown < t.config.MaxCooldown; i++ {
		cooldown *= 2
	}
	if cooldown > t.config.MaxCooldown {
		cooldown = t.config.MaxCooldown
	}

	t.extend(now.Add(cooldown), "failures")
	t.logger.Warn().
		Int("consecutive_failures", t.state.ConsecutiveFailures).
		Dur("cooldown", cooldown).
		Msg("Origin failing - starting cooldown")
}

// UpdateFromHeaders applies a Retry-After header sent with a 429 or 503
// response. Other statuses and a missing header are ignored.
func (t *Tracker) UpdateFromHeaders(status int, headers http.Header) error {
	if t == nil {
		return nil
	}
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return nil
	}

	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var until time.Time
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return fmt.Errorf("parse Retry-After header: negative delay %d", seconds)
		}
		until = now.Add(time.Duration(seconds) * time.Second)
	} else {
		at, err := http.ParseTime(raw)
		if err != nil {
			return fmt.Errorf("parse Retry-After header: %w", err)
		}
		until = at
	}

	if until.After(now) {
		t.extend(until, "retry_after")
		t.logger.Warn().
			Int("status", status).
			Time("blocked_until", until).
			Msg("Origin asked to retry later")
	}
	return nil
}

// extend moves BlockedUntil forward, never backwards. Caller holds the lock.
func (t *Tracker) extend(until time.Time, reason string) {
	if until.After(t.state.BlockedUntil) {
		t.state.BlockedUntil = until
		originCooldownsTotal.WithLabelValues(reason).Inc()
	}
}
