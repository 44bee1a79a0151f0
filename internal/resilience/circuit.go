package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned while a breaker refuses calls to its dependency.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets a single trial call through after the cool-off.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed, Open, HalfOpen:
		return float64(s)
	default:
		return -1
	}
}

// BreakerConfig tunes a Breaker. Zero values take the defaults noted per field.
type BreakerConfig struct {
	// Target labels metrics and logs, "default" when empty.
	Target string
	// MinRequests observed before the failure ratio is judged, 1 when unset.
	MinRequests int
	// FailureRatio at or above which the breaker opens, 0.5 when unset.
	FailureRatio float64
	// OpenFor is the cool-off before a trial call, 30s when unset.
	OpenFor time.Duration
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Breaker guards a flaky dependency such as Stripe or Gemini with a failure-ratio state machine.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	total    int
	openedAt time.Time
	trial    bool
}

// NewBreaker builds a closed breaker and publishes its initial state gauge.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg}
	BreakerState.WithLabelValues(cfg.Target).Set(Closed.gauge())
	return b
}

// Allow reports whether a call may proceed. Once the cool-off has passed an open breaker admits
// exactly one trial; further calls are refused until that trial is reported.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.trial = true
		return true
	case HalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	b.total++
	if !success {
		b.failures++
	}
	if b.total < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(b.total) >= b.cfg.FailureRatio {
		b.moveLocked(ctx, Open)
		return
	}
	// halve the window so old successes cannot mask a fresh outage forever
	if b.total > 2*b.cfg.MinRequests {
		b.total = (b.total + 1) / 2
		b.failures = (b.failures + 1) / 2
	}
}

// Abandon releases a half-open trial whose outcome says nothing about the dependency, for
// example when the caller cancelled.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.trial = false
	}
}

// Do runs fn when the breaker allows it and reports the outcome. Context cancellation by the
// caller is not counted as a downstream failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.Abandon()
		return err
	}
	b.Report(ctx, err == nil)
	return err
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.failures, b.total, b.trial = 0, 0, false
	switch next {
	case Open:
		b.openedAt = b.cfg.Now()
	case Closed:
		b.openedAt = time.Time{}
	}

	target := b.cfg.Target
	BreakerState.WithLabelValues(target).Set(next.gauge())
	if prev == next {
		return
	}
	BreakerTransitions.WithLabelValues(target, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}

	logger := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = l
	}
	if logger == nil {
		return
	}
	evt := logger.Info().Str("target", target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}
