package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/resilience"
)

const workerQueueGroup = "facturasend-workers"

// Queue carries queued batch submissions and announces finished ones.
type Queue struct {
	conn           *nats.Conn
	subject        string
	outcomeSubject string
	source         string
	executor       *resilience.Executor
	drainTimeout   time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	OutcomeSubject       string
	Source               string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// DrainTimeout bounds how long shutdown waits for buffered requests.
	DrainTimeout       time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	source := options.Source
	if source == "" {
		source = defaultSource
	}

	conn, err := nats.Connect(
		url,
		nats.Name(source),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		outcomeSubject: options.OutcomeSubject,
		source:         source,
		executor:       options.ResilienceExecutor,
		drainTimeout:   drainTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishSubmissionRequest(ctx context.Context, request domain.SubmissionRequest) error {
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	payload, err := encodeEvent(q.source, EventBatchRequested, request.RequestID, request.RequestedAt, request)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.subject, payload)
}

// PublishOutcome is a no-op when no outcome subject is configured.
func (q *Queue) PublishOutcome(ctx context.Context, outcome *domain.Outcome) error {
	if q.outcomeSubject == "" || outcome == nil {
		return nil
	}
	at := outcome.FinishedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	payload, err := encodeEvent(q.source, EventBatchCompleted, outcome.ID, at, newOutcomeEvent(outcome))
	if err != nil {
		return err
	}
	return q.publish(ctx, q.outcomeSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeSubmissionRequests blocks until ctx is done, then drains the
// subscription. Handlers run detached from ctx so buffered and in-flight
// requests finish instead of being dropped; the message is the only copy of a
// queued batch.
func (q *Queue) SubscribeSubmissionRequests(ctx context.Context, handler func(context.Context, domain.SubmissionRequest) error) error {
	handle := newSubmissionMessageHandler(ctx, handler)
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		handle(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	slog.Info("submission_subscription_draining", "subject", q.subject)
	closed := sub.StatusChanged(nats.SubscriptionClosed)
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	select {
	case <-closed:
	case <-time.After(q.drainTimeout + time.Second):
		return fmt.Errorf("nats drain subscription: not closed after %s", q.drainTimeout)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	slog.Info("submission_subscription_drained", "subject", q.subject)
	return nil
}

func newSubmissionMessageHandler(ctx context.Context, handler func(context.Context, domain.SubmissionRequest) error) func(subject string, data []byte) {
	detached := context.WithoutCancel(ctx)
	return func(subject string, data []byte) {
		request, err := decodeSubmissionRequest(data)
		if err != nil {
			slog.Error("submission_request_decode_failed", "subject", subject, "error", err)
			return
		}
		if ctx.Err() != nil {
			slog.Info("submission_request_drained", "request_id", request.RequestID)
		}
		if err := handler(detached, request); err != nil {
			slog.Error("submission_request_failed", "request_id", request.RequestID, "error", err)
		}
	}
}
