package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what a failed call means for the
// backend: whether repeating it may help and whether it counts against the
// breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs backend calls behind one breaker per operation name.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s: nil call", operation)
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	op := operationName(operation)

	attempts := func() error { return e.attempt(ctx, op, fn, classifier) }
	if !e.cfg.BreakerEnabled {
		return attempts()
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, attempts()
	})
	return err
}

// attempt calls fn until it succeeds, fails permanently, runs out of attempts
// or the next wait would outlive the caller's deadline.
func (e *Executor) attempt(ctx context.Context, op string, fn func(context.Context) error, classifier ErrorClassifier) error {
	schedule := newRetrySchedule(e.cfg)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !classifier(err).Retryable || n >= e.cfg.RetryMaxAttempts {
			return err
		}

		wait := schedule.next()
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			slog.Warn("backend_retry_skipped", "operation", op, "attempt", n, "reason", "deadline", "error", err)
			return err
		}
		slog.Warn("backend_retry",
			"operation", op,
			"attempt", n,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) breaker(op string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	cfg := e.cfg
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= cfg.BreakerMinRequests &&
				float64(counts.TotalFailures) >= cfg.BreakerFailureRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("backend_breaker_state", "operation", name, "from", from.String(), "to", to.String())
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

// WithoutRetry keeps the breaker accounting of classifier but never retries.
// Used for calls that must reach the backend at most once per request.
func WithoutRetry(classifier ErrorClassifier) ErrorClassifier {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return func(err error) ErrorClassification {
		class := classifier(err)
		class.Retryable = false
		return class
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

func operationName(operation string) string {
	if op := strings.TrimSpace(operation); op != "" {
		return op
	}
	return "unknown"
}

// retrySchedule yields exponential waits capped at the configured maximum.
type retrySchedule struct {
	current    time.Duration
	max        time.Duration
	multiplier float64
}

func newRetrySchedule(cfg Config) *retrySchedule {
	return &retrySchedule{current: cfg.RetryInitialBackoff, max: cfg.RetryMaxBackoff, multiplier: cfg.RetryMultiplier}
}

func (s *retrySchedule) next() time.Duration {
	wait := min(s.current, s.max)
	s.current = min(time.Duration(float64(s.current)*s.multiplier), s.max)
	return wait
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
