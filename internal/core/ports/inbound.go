package ports

import (
	"context"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

// BatchSubmitter is the toolbar action over a list-view selection.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, documents domain.SelectionSet) (*domain.Outcome, error)
}

// DocumentSender covers the single-document form actions.
type DocumentSender interface {
	Retry(ctx context.Context, doc domain.FormDocument) (*domain.Outcome, error)
	Send(ctx context.Context, doc domain.FormDocument) (*domain.Outcome, error)
}

// KudeFetcher retrieves rendered documents.
type KudeFetcher interface {
	Fetch(ctx context.Context, target domain.KudeTarget) (*domain.KudeOutcome, error)
}

// QueueService is the read side and maintenance actions of the submission queue.
type QueueService interface {
	ListPending(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingDocument, error)
	Preview(ctx context.Context, documents domain.SelectionSet) (*domain.PreviewOutcome, error)
	ResetRetries(ctx context.Context, documents domain.SelectionSet) (*domain.ResetOutcome, error)
	ListSubmissions(ctx context.Context, limit int) ([]domain.SubmissionRecord, error)
}
