package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/core/ports"
)

const (
	dateLayout          = "2006-01-02"
	defaultJournalLimit = 20
	maxJournalLimit     = 200
)

type QueueUseCase struct {
	backend ports.InvoicingBackend
	journal ports.SubmissionJournal
}

func NewQueueUseCase(backend ports.InvoicingBackend, journal ports.SubmissionJournal) *QueueUseCase {
	return &QueueUseCase{
		backend: backend,
		journal: journal,
	}
}

func (uc *QueueUseCase) ListPending(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingDocument, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	docs, err := uc.backend.ListPending(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	for i := range docs {
		docs[i].CanRetry = domain.CanRetry(docs[i].RemoteStatus)
		docs[i].KudeAvailable = domain.KudeAvailable(docs[i].RemoteStatus, docs[i].TrackingCode)
	}
	return docs, nil
}

func (uc *QueueUseCase) Preview(ctx context.Context, documents domain.SelectionSet) (*domain.PreviewOutcome, error) {
	if err := domain.RequireSelection(documents); err != nil {
		return nil, err
	}

	out := &domain.PreviewOutcome{}
	preview, err := uc.backend.PreviewPayload(ctx, documents)
	if err != nil {
		slog.Error("preview_failed", "documents", len(documents), "error", err)
		out.Preview = domain.PreviewResult{Success: false, Error: domain.BackendUnreachableMsg}
		out.Notices = append(out.Notices, domain.Notice{Level: domain.NoticeError, Title: "Error", Message: domain.BackendUnreachableMsg})
		return out, nil
	}
	out.Preview = preview

	if !preview.Success {
		msg := preview.Error
		if msg == "" {
			msg = domain.UnknownErrorMessage
		}
		out.Preview.Error = msg
		out.Notices = append(out.Notices, domain.Notice{Level: domain.NoticeError, Title: "Error", Message: msg})
		return out, nil
	}

	out.Notices = append(out.Notices, domain.Notice{
		Level:   domain.NoticeInfo,
		Title:   "Payload to be sent to FacturaSend",
		Message: fmt.Sprintf("Processed documents: %d", preview.DocumentCount),
	})
	if len(preview.Errors) > 0 {
		out.Notices = append(out.Notices, domain.Notice{
			Level:   domain.NoticeWarning,
			Title:   "Conversion errors",
			Message: fmt.Sprintf("%d document(s) could not be converted", len(preview.Errors)),
			Items:   preview.Errors,
		})
	}
	return out, nil
}

func (uc *QueueUseCase) ResetRetries(ctx context.Context, documents domain.SelectionSet) (*domain.ResetOutcome, error) {
	if err := domain.RequireSelection(documents); err != nil {
		return nil, err
	}

	out := &domain.ResetOutcome{}
	result, err := uc.backend.ResetRetries(ctx, documents)
	if err != nil {
		slog.Error("reset_retries_failed", "documents", len(documents), "error", err)
		out.Result = domain.ResetResult{Success: false, Error: domain.BackendUnreachableMsg}
		out.Notices = append(out.Notices, domain.Notice{Level: domain.NoticeError, Title: "Error", Message: domain.BackendUnreachableMsg})
		return out, nil
	}
	out.Result = result

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = domain.UnknownErrorMessage
		}
		out.Result.Error = msg
		out.Notices = append(out.Notices, domain.Notice{Level: domain.NoticeError, Title: "Error", Message: msg})
		return out, nil
	}

	msg := result.Message
	if msg == "" {
		msg = fmt.Sprintf("Retry counters reset for %d document(s)", len(documents))
	}
	slog.Info("retries_reset", "documents", len(documents))
	out.Refresh = domain.RefreshList
	out.Notices = append(out.Notices, domain.Notice{Level: domain.NoticeSuccess, Message: msg})
	return out, nil
}

func (uc *QueueUseCase) ListSubmissions(ctx context.Context, limit int) ([]domain.SubmissionRecord, error) {
	if uc.journal == nil {
		return []domain.SubmissionRecord{}, nil
	}
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	records, err := uc.journal.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return records, nil
}

func normalizeFilter(filter domain.PendingFilter) (domain.PendingFilter, error) {
	filter.DocumentType = domain.DocumentType(strings.TrimSpace(string(filter.DocumentType)))
	filter.DateFrom = strings.TrimSpace(filter.DateFrom)
	filter.DateTo = strings.TrimSpace(filter.DateTo)

	switch filter.DocumentType {
	case "", domain.DocumentTypeSalesInvoice, domain.DocumentTypeCreditNote, domain.DocumentTypeDebitNote:
	default:
		return filter, domain.WrapError(domain.ErrInvalidInput, "pending filter", fmt.Errorf("unknown document type %q", filter.DocumentType))
	}

	var from, to time.Time
	var err error
	if filter.DateFrom != "" {
		if from, err = time.Parse(dateLayout, filter.DateFrom); err != nil {
			return filter, domain.WrapError(domain.ErrInvalidInput, "pending filter", fmt.Errorf("date_from: %w", err))
		}
	}
	if filter.DateTo != "" {
		if to, err = time.Parse(dateLayout, filter.DateTo); err != nil {
			return filter, domain.WrapError(domain.ErrInvalidInput, "pending filter", fmt.Errorf("date_to: %w", err))
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return filter, domain.WrapError(domain.ErrInvalidInput, "pending filter", fmt.Errorf("date_to %s is before date_from %s", filter.DateTo, filter.DateFrom))
	}
	return filter, nil
}
