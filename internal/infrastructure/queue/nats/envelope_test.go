package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

func TestSubmissionRequestRoundTripsThroughCloudEvent(t *testing.T) {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	req := domain.SubmissionRequest{
		RequestID:   "req-1",
		Documents:   domain.SelectionSet{{DocumentType: domain.DocumentTypeSalesInvoice, DocumentID: "SINV-1"}, {DocumentType: domain.DocumentTypeSalesInvoice, DocumentID: "SINV-2"}},
		RequestedBy: "api",
		RequestedAt: at,
	}

	raw, err := encodeEvent(defaultSource, EventBatchRequested, req.RequestID, at, req)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope["specversion"] != "1.0" || envelope["type"] != EventBatchRequested || envelope["id"] != "req-1" {
		t.Fatalf("unexpected envelope %v", envelope)
	}

	decoded, err := decodeSubmissionRequest(raw)
	if err != nil {
		t.Fatalf("decodeSubmissionRequest() error = %v", err)
	}
	if decoded.RequestID != "req-1" || len(decoded.Documents) != 2 || decoded.Documents[1].DocumentID != "SINV-2" {
		t.Fatalf("unexpected decoded request %+v", decoded)
	}
	if !decoded.RequestedAt.Equal(at) {
		t.Fatalf("unexpected requested_at %s", decoded.RequestedAt)
	}
}

func TestDecodeRejectsOtherEventTypes(t *testing.T) {
	raw, err := encodeEvent(defaultSource, EventBatchCompleted, "out-1", time.Now(), map[string]string{"x": "y"})
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	if _, err := decodeSubmissionRequest(raw); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if _, err := decodeSubmissionRequest([]byte("SINV-1")); err == nil {
		t.Fatalf("expected error for non-event payload")
	}
}

func TestOutcomeEventSummarisesOutcome(t *testing.T) {
	outcome := &domain.Outcome{
		ID:         "out-1",
		Action:     domain.ActionRetry,
		Documents:  domain.SelectionSet{{DocumentType: domain.DocumentTypeDebitNote, DocumentID: "ND-1"}},
		Submission: &domain.SubmissionResult{Success: true, TrackingCodes: []string{"0144"}},
		FollowUp: &domain.FollowUp{
			Strategy: domain.KudeByTrackingCodes,
			Kude:     &domain.KudeOutcome{Success: true},
		},
		FinishedAt: time.Now().UTC(),
	}

	ev := newOutcomeEvent(outcome)
	if ev.DocumentType != domain.DocumentTypeDebitNote || !ev.Success || !ev.KudeReady {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.FollowUp != domain.KudeByTrackingCodes || len(ev.TrackingCodes) != 1 {
		t.Fatalf("unexpected follow-up fields %+v", ev)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", natsgo.ErrConnectionClosed)); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", natsgo.ErrMaxPayload)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
	plain := errors.New("boom")
	if err := wrapTemporaryIfNeeded(plain); !errors.Is(err, plain) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected error unchanged, got %v", err)
	}
}

func TestSubmissionHandlerKeepsRunningAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	var handlerErr error
	handle := newSubmissionMessageHandler(ctx, func(hctx context.Context, request domain.SubmissionRequest) error {
		handlerErr = hctx.Err()
		got = append(got, request.RequestID)
		return nil
	})

	encode := func(id string) []byte {
		raw, err := encodeEvent(defaultSource, EventBatchRequested, id, time.Now(), domain.SubmissionRequest{
			RequestID: id,
			Documents: domain.SelectionSet{{DocumentType: domain.DocumentTypeSalesInvoice, DocumentID: "SINV-" + id}},
		})
		if err != nil {
			t.Fatalf("encodeEvent() error = %v", err)
		}
		return raw
	}

	handle("facturasend.batches", encode("req-1"))
	cancel()
	handle("facturasend.batches", encode("req-2"))
	handle("facturasend.batches", encode("req-3"))

	if len(got) != 3 || got[2] != "req-3" {
		t.Fatalf("expected all buffered requests handled, got %v", got)
	}
	if handlerErr != nil {
		t.Fatalf("handler context cancelled with worker shutdown: %v", handlerErr)
	}
}

func TestSubmissionHandlerSkipsUndecodableMessages(t *testing.T) {
	calls := 0
	handle := newSubmissionMessageHandler(context.Background(), func(context.Context, domain.SubmissionRequest) error {
		calls++
		return nil
	})
	handle("facturasend.batches", []byte("SINV-1"))
	if calls != 0 {
		t.Fatalf("expected handler not called, got %d calls", calls)
	}
}
