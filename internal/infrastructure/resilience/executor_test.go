package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errGatewayTimeout = errors.New("erp status: 504 Gateway Timeout")

func retryOnGateway(err error) ErrorClassification {
	return ErrorClassification{
		Retryable:     errors.Is(err, errGatewayTimeout),
		RecordFailure: true,
	}
}

func fastRetryConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "frappe.get_pending_documents", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errGatewayTimeout
		}
		return nil
	}, retryOnGateway)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())

	attempts := 0
	errForbidden := errors.New("erp status: 403 Forbidden")
	err := exec.Execute(context.Background(), "frappe.download_lote_kude", func(context.Context) error {
		attempts++
		return errForbidden
	}, retryOnGateway)
	if !errors.Is(err, errForbidden) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithoutRetryMakesSingleAttempt(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "frappe.send_batch_to_facturasend", func(context.Context) error {
		attempts++
		return errGatewayTimeout
	}, WithoutRetry(retryOnGateway))
	if !errors.Is(err, errGatewayTimeout) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", attempts)
	}

	class := WithoutRetry(retryOnGateway)(errGatewayTimeout)
	if class.Retryable || !class.RecordFailure {
		t.Fatalf("expected failure recorded without retry, got %+v", class)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
		OnStateChange: func(operation string, from, to gobreaker.State) {
			transitions = append(transitions, operation+":"+from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "frappe.download_kude_by_cdc", func(context.Context) error {
			return errGatewayTimeout
		}, retryOnGateway)
		if !errors.Is(err, errGatewayTimeout) {
			t.Fatalf("expected gateway error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "frappe.download_kude_by_cdc", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, retryOnGateway)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("expected IsCircuitOpen to match %v", err)
	}
	if len(transitions) != 1 || transitions[0] != "frappe.download_kude_by_cdc:closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "frappe.preview_facturasend_payload", func(context.Context) error {
		called = true
		return nil
	}, retryOnGateway)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run after cancellation")
	}
}

func TestExecuteSkipsRetryPastDeadline(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     time.Second,
		RetryMultiplier:     2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	attempts := 0
	err := exec.Execute(ctx, "frappe.get_pending_documents", func(context.Context) error {
		attempts++
		return errGatewayTimeout
	}, retryOnGateway)
	if !errors.Is(err, errGatewayTimeout) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retry that cannot finish before the deadline, got %d attempts", attempts)
	}
}

func TestRetryScheduleCapsBackoff(t *testing.T) {
	s := newRetrySchedule(Config{RetryInitialBackoff: 200 * time.Millisecond, RetryMaxBackoff: 500 * time.Millisecond, RetryMultiplier: 2})
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for i, w := range want {
		if got := s.next(); got != w {
			t.Fatalf("wait %d = %s, want %s", i, got, w)
		}
	}
}
