package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

// InvoicingBackend is the ERP-side RPC surface of the FacturaSend integration.
type InvoicingBackend interface {
	ListPending(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingDocument, error)
	SubmitBatch(ctx context.Context, documents domain.SelectionSet) (domain.SubmissionResult, error)
	PreviewPayload(ctx context.Context, documents domain.SelectionSet) (domain.PreviewResult, error)
	FetchKudeBySelection(ctx context.Context, documents domain.SelectionSet) (domain.RetrievalResult, error)
	FetchKudeByBatchID(ctx context.Context, batchID string) (domain.RetrievalResult, error)
	FetchKudeByTrackingCodes(ctx context.Context, codes []string) (domain.RetrievalResult, error)
	ResetRetries(ctx context.Context, documents domain.SelectionSet) (domain.ResetResult, error)
}

// KudeOpener turns a retrieved document URL into something the user can open.
type KudeOpener interface {
	Materialize(ctx context.Context, label, url string) (string, error)
}

// KudeFiles serves previously materialized documents.
type KudeFiles interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// SubmissionJournal persists one row per submission round trip.
type SubmissionJournal interface {
	Record(ctx context.Context, record domain.SubmissionRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.SubmissionRecord, error)
}

// OutcomePublisher announces finished submissions.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome *domain.Outcome) error
}

// SubmissionQueue carries batch submissions to the worker.
type SubmissionQueue interface {
	PublishSubmissionRequest(ctx context.Context, request domain.SubmissionRequest) error
	SubscribeSubmissionRequests(ctx context.Context, handler func(context.Context, domain.SubmissionRequest) error) error
}

// WorkflowObserver receives workflow measurements.
type WorkflowObserver interface {
	ObserveSubmission(action domain.Action, success bool, itemErrors int, duration time.Duration)
	ObserveKude(strategy domain.KudeStrategy, result string)
}
