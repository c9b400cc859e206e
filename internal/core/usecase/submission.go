package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/core/ports"
)

const (
	DefaultSettleDelay = 5 * time.Second
	recordTimeout      = 5 * time.Second
)

type SubmissionOptions struct {
	// SettleDelay is waited before a tracking-code retrieval so the backend can
	// finish rendering. It is not a request timeout.
	SettleDelay time.Duration

	Journal  ports.SubmissionJournal
	Events   ports.OutcomePublisher
	Observer ports.WorkflowObserver
}

// SubmissionUseCase runs the submit → interpret → follow-up workflow for the
// batch toolbar action and the single-document form actions.
type SubmissionUseCase struct {
	backend     ports.InvoicingBackend
	kude        ports.KudeFetcher
	journal     ports.SubmissionJournal
	events      ports.OutcomePublisher
	observer    ports.WorkflowObserver
	settleDelay time.Duration

	wait  func(context.Context, time.Duration) error
	now   func() time.Time
	newID func() string
}

func NewSubmissionUseCase(
	backend ports.InvoicingBackend,
	kude ports.KudeFetcher,
	opts SubmissionOptions,
) *SubmissionUseCase {
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	delay := opts.SettleDelay
	if delay < 0 {
		delay = 0
	}
	return &SubmissionUseCase{
		backend:     backend,
		kude:        kude,
		journal:     opts.Journal,
		events:      opts.Events,
		observer:    observer,
		settleDelay: delay,
		wait:        sleepContext,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// SubmitBatch validates the selection and submits it in one request.
func (uc *SubmissionUseCase) SubmitBatch(ctx context.Context, documents domain.SelectionSet) (*domain.Outcome, error) {
	selection, err := domain.ValidateSelection(documents)
	if err != nil {
		return nil, err
	}
	return uc.run(ctx, domain.ActionBatch, selection.Clone(), domain.RefreshList), nil
}

// Retry resubmits one document whose last attempt failed. Repeated calls
// issue independent submissions.
func (uc *SubmissionUseCase) Retry(ctx context.Context, doc domain.FormDocument) (*domain.Outcome, error) {
	if !doc.CanRetry() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retry document",
			fmt.Errorf("%w: %s is %q", domain.ErrRetryNotAllowed, doc.DocumentRef.String(), doc.Status))
	}
	selection, err := domain.ValidateSelection(domain.SelectionSet{doc.DocumentRef})
	if err != nil {
		return nil, err
	}
	return uc.run(ctx, domain.ActionRetry, selection, domain.RefreshDocument), nil
}

// Send submits one document from its form.
func (uc *SubmissionUseCase) Send(ctx context.Context, doc domain.FormDocument) (*domain.Outcome, error) {
	if !doc.CanSend() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "send document",
			fmt.Errorf("%w: %s has tracking code %s", domain.ErrSendNotAllowed, doc.DocumentRef.String(), doc.TrackingCode))
	}
	selection, err := domain.ValidateSelection(domain.SelectionSet{doc.DocumentRef})
	if err != nil {
		return nil, err
	}
	return uc.run(ctx, domain.ActionSend, selection, domain.RefreshDocument), nil
}

func (uc *SubmissionUseCase) run(
	ctx context.Context,
	action domain.Action,
	selection domain.SelectionSet,
	refresh domain.RefreshScope,
) *domain.Outcome {
	outcome := &domain.Outcome{
		ID:        uc.newID(),
		Action:    action,
		Documents: selection,
		StartedAt: uc.now(),
	}

	result, err := uc.backend.SubmitBatch(ctx, selection)
	if err != nil {
		slog.Error("batch_submit_failed",
			"outcome_id", outcome.ID,
			"action", string(action),
			"document_type", string(selection.DocumentType()),
			"documents", len(selection),
			"error", err,
		)
		outcome.Unreached = true
		result = domain.SubmissionResult{Success: false, Error: domain.BackendUnreachableMsg}
	}
	result.Normalize()
	outcome.Submission = &result
	roundTrip := uc.now().Sub(outcome.StartedAt)

	if result.Success {
		slog.Info("batch_submitted",
			"outcome_id", outcome.ID,
			"action", string(action),
			"document_type", string(selection.DocumentType()),
			"documents", len(selection),
			"batch_id", result.BatchID,
			"tracking_codes", len(result.TrackingCodes),
		)
		outcome.Refresh = refresh
		outcome.Notify(domain.Notice{
			Level:   domain.NoticeSuccess,
			Message: successMessage(action, selection),
		})
		uc.followUp(ctx, outcome, result)
	} else {
		report := domain.NewFailureReport(result, selection)
		outcome.Failure = &report
		outcome.Notify(failureNotice(action, report))
		if !outcome.Unreached {
			slog.Warn("batch_rejected",
				"outcome_id", outcome.ID,
				"action", string(action),
				"documents", len(selection),
				"error", report.Error,
				"item_errors", len(report.Items),
			)
		}
	}

	outcome.FinishedAt = uc.now()
	uc.observer.ObserveSubmission(action, result.Success, len(result.Errors), roundTrip)
	uc.record(ctx, outcome)
	return outcome
}

func successMessage(action domain.Action, selection domain.SelectionSet) string {
	switch action {
	case domain.ActionRetry:
		return "Document resubmitted successfully"
	case domain.ActionSend:
		return fmt.Sprintf("%s sent successfully to FacturaSend", selection.DocumentType())
	default:
		return fmt.Sprintf("%d document(s) sent successfully", len(selection))
	}
}

func failureNotice(action domain.Action, report domain.FailureReport) domain.Notice {
	title := "Error sending documents"
	if action == domain.ActionRetry {
		title = "Error resubmitting document"
	}
	return domain.Notice{
		Level:   domain.NoticeError,
		Title:   title,
		Message: report.Error,
		Items:   report.ItemLines(),
		Details: report.Details,
	}
}

// record runs even when the caller has gone away: the submission already
// happened and must be journaled.
func (uc *SubmissionUseCase) record(ctx context.Context, outcome *domain.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if uc.journal != nil {
		if err := uc.journal.Record(ctx, domain.NewSubmissionRecord(outcome)); err != nil {
			slog.Error("journal_record_failed", "outcome_id", outcome.ID, "error", err)
		}
	}
	if uc.events != nil {
		if err := uc.events.PublishOutcome(ctx, outcome); err != nil {
			slog.Error("outcome_publish_failed", "outcome_id", outcome.ID, "error", err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopObserver struct{}

func (noopObserver) ObserveSubmission(domain.Action, bool, int, time.Duration) {}
func (noopObserver) ObserveKude(domain.KudeStrategy, string)                   {}
