package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

// followUp requests rendered documents after a successful submission.
// Batch id wins over tracking codes; with neither nothing is requested.
func (uc *SubmissionUseCase) followUp(ctx context.Context, outcome *domain.Outcome, result domain.SubmissionResult) {
	if uc.kude == nil {
		return
	}

	switch {
	case result.BatchID != "":
		fu := &domain.FollowUp{Strategy: domain.KudeByBatchID}
		outcome.FollowUp = fu
		uc.fetchInto(ctx, outcome, fu, domain.KudeTarget{BatchID: result.BatchID})

	case len(result.TrackingCodes) > 0:
		fu := &domain.FollowUp{
			Strategy: domain.KudeByTrackingCodes,
			DelayMS:  uc.settleDelay.Milliseconds(),
		}
		outcome.FollowUp = fu
		outcome.Notify(domain.Notice{
			Level:   domain.NoticeInfo,
			Message: fmt.Sprintf("The KUDE will be downloaded automatically in %d seconds...", int(math.Ceil(uc.settleDelay.Seconds()))),
		})
		if err := uc.wait(ctx, uc.settleDelay); err != nil {
			slog.Warn("kude_follow_up_aborted", "outcome_id", outcome.ID, "error", err)
			fu.Aborted = true
			outcome.Notify(domain.Notice{
				Level:   domain.NoticeWarning,
				Title:   "KUDE not downloaded",
				Message: "The automatic KUDE download was cancelled. Use \"Download KUDE\" to fetch it manually.",
			})
			return
		}
		codes := append([]string(nil), result.TrackingCodes...)
		uc.fetchInto(ctx, outcome, fu, domain.KudeTarget{TrackingCodes: codes})
	}
}

func (uc *SubmissionUseCase) fetchInto(ctx context.Context, outcome *domain.Outcome, fu *domain.FollowUp, target domain.KudeTarget) {
	kude, err := uc.kude.Fetch(ctx, target)
	if err != nil {
		slog.Error("kude_follow_up_failed", "outcome_id", outcome.ID, "strategy", string(fu.Strategy), "error", err)
		outcome.Notify(domain.Notice{
			Level:   domain.NoticeError,
			Title:   "Error downloading KUDE",
			Message: err.Error(),
		})
		return
	}
	fu.Kude = kude
	for _, n := range kude.Notices {
		outcome.Notify(n)
	}
}
