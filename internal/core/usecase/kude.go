package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/core/ports"
)

const (
	kudeResultSuccess   = "success"
	kudeResultNotReady  = "not_ready"
	kudeResultError     = "error"
	kudeResultTransport = "transport_error"
)

type KudeUseCase struct {
	backend  ports.InvoicingBackend
	opener   ports.KudeOpener
	observer ports.WorkflowObserver
}

func NewKudeUseCase(backend ports.InvoicingBackend, opener ports.KudeOpener, observer ports.WorkflowObserver) *KudeUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &KudeUseCase{
		backend:  backend,
		opener:   opener,
		observer: observer,
	}
}

// Fetch issues exactly one retrieval request for the target.
func (uc *KudeUseCase) Fetch(ctx context.Context, target domain.KudeTarget) (*domain.KudeOutcome, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	strategy := target.Strategy()
	outcome := &domain.KudeOutcome{Strategy: strategy, Target: target}

	result, err := uc.retrieve(ctx, strategy, target)
	if err != nil {
		slog.Error("kude_fetch_failed",
			"strategy", string(strategy),
			"label", target.Label(),
			"error", err,
		)
		outcome.Error = domain.BackendUnreachableMsg
		outcome.Notices = append(outcome.Notices, domain.Notice{
			Level:   domain.NoticeError,
			Title:   "Error downloading KUDE",
			Message: domain.BackendUnreachableMsg,
		})
		uc.observer.ObserveKude(strategy, kudeResultTransport)
		return outcome, nil
	}

	if result.Success && result.PDFURL != "" {
		location, err := uc.open(ctx, target.Label(), result.PDFURL)
		if err != nil {
			slog.Error("kude_open_failed", "strategy", string(strategy), "label", target.Label(), "error", err)
			outcome.Error = err.Error()
			outcome.Notices = append(outcome.Notices, domain.Notice{
				Level:   domain.NoticeError,
				Title:   "Error downloading KUDE",
				Message: "The KUDE was retrieved but could not be opened: " + err.Error(),
			})
			uc.observer.ObserveKude(strategy, kudeResultError)
			return outcome, nil
		}
		outcome.Success = true
		outcome.Location = location
		outcome.Notices = append(outcome.Notices, domain.Notice{
			Level:   domain.NoticeSuccess,
			Message: "KUDE downloaded successfully",
		})
		uc.observer.ObserveKude(strategy, kudeResultSuccess)
		return outcome, nil
	}

	errText := result.Error
	if errText == "" {
		errText = domain.UnknownErrorMessage
	}
	outcome.Error = errText

	if domain.IsKudeNotReady(errText) {
		outcome.NotReady = true
		outcome.Notices = append(outcome.Notices, domain.Notice{
			Level:   domain.NoticeWarning,
			Title:   "KUDE not available yet",
			Message: "The electronic document is still being processed by FacturaSend. Please download the KUDE manually in a few moments.",
		})
		uc.observer.ObserveKude(strategy, kudeResultNotReady)
		return outcome, nil
	}

	outcome.Notices = append(outcome.Notices, domain.Notice{
		Level:   domain.NoticeError,
		Title:   "Error downloading KUDE",
		Message: "Error downloading KUDE: " + errText,
	})
	uc.observer.ObserveKude(strategy, kudeResultError)
	return outcome, nil
}

func (uc *KudeUseCase) retrieve(ctx context.Context, strategy domain.KudeStrategy, target domain.KudeTarget) (domain.RetrievalResult, error) {
	switch strategy {
	case domain.KudeByBatchID:
		return uc.backend.FetchKudeByBatchID(ctx, target.BatchID)
	case domain.KudeByTrackingCodes:
		return uc.backend.FetchKudeByTrackingCodes(ctx, target.TrackingCodes)
	default:
		return uc.backend.FetchKudeBySelection(ctx, target.Documents)
	}
}

func (uc *KudeUseCase) open(ctx context.Context, label, url string) (string, error) {
	if uc.opener == nil {
		return url, nil
	}
	location, err := uc.opener.Materialize(ctx, label, url)
	if err != nil {
		return "", fmt.Errorf("materialize kude: %w", err)
	}
	return location, nil
}
