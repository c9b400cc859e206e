package nats

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

const (
	EventBatchRequested = "facturasend.batch.requested"
	EventBatchCompleted = "facturasend.batch.completed"

	defaultSource = "facturasend-workflow"
)

func encodeEvent(source, eventType, id string, at time.Time, data any) ([]byte, error) {
	event := cloudevents.NewEvent()
	event.SetID(id)
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(at)
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return nil, fmt.Errorf("set %s event data: %w", eventType, err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s event: %w", eventType, err)
	}
	raw, err := event.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return raw, nil
}

func decodeSubmissionRequest(raw []byte) (domain.SubmissionRequest, error) {
	event := cloudevents.NewEvent()
	if err := event.UnmarshalJSON(raw); err != nil {
		return domain.SubmissionRequest{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type() != EventBatchRequested {
		return domain.SubmissionRequest{}, fmt.Errorf("unexpected event type %q", event.Type())
	}

	var req domain.SubmissionRequest
	if err := event.DataAs(&req); err != nil {
		return domain.SubmissionRequest{}, fmt.Errorf("decode submission request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = event.ID()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = event.Time()
	}
	return req, nil
}

// outcomeEvent is the published summary of a finished submission.
type outcomeEvent struct {
	OutcomeID          string              `json:"outcome_id"`
	Action             domain.Action       `json:"action"`
	DocumentType       domain.DocumentType `json:"document_type"`
	Documents          domain.SelectionSet `json:"documents"`
	Success            bool                `json:"success"`
	Error              string              `json:"error,omitempty"`
	ItemErrors         []domain.ItemError  `json:"item_errors,omitempty"`
	BatchID            string              `json:"batch_id,omitempty"`
	TrackingCodes      []string            `json:"tracking_codes,omitempty"`
	FollowUp           domain.KudeStrategy `json:"follow_up,omitempty"`
	KudeReady          bool                `json:"kude_ready"`
	BackendUnreachable bool                `json:"backend_unreachable,omitempty"`
	FinishedAt         time.Time           `json:"finished_at"`
}

func newOutcomeEvent(o *domain.Outcome) outcomeEvent {
	rec := domain.NewSubmissionRecord(o)
	ev := outcomeEvent{
		OutcomeID:          o.ID,
		Action:             o.Action,
		DocumentType:       rec.DocumentType,
		Documents:          o.Documents,
		Success:            rec.Success,
		Error:              rec.Error,
		ItemErrors:         rec.ItemErrors,
		BatchID:            rec.BatchID,
		TrackingCodes:      rec.TrackingCodes,
		FollowUp:           rec.FollowUp,
		BackendUnreachable: o.Unreached,
		FinishedAt:         o.FinishedAt,
	}
	if o.FollowUp != nil && o.FollowUp.Kude != nil {
		ev.KudeReady = o.FollowUp.Kude.Success
	}
	return ev
}
