package httpadapter

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

type batchFake struct {
	mu       sync.Mutex
	calls    []domain.SelectionSet
	outcome  *domain.Outcome
	err      error
	validate bool
}

func (f *batchFake) SubmitBatch(_ context.Context, documents domain.SelectionSet) (*domain.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, documents)
	f.mu.Unlock()
	if f.validate {
		if _, err := domain.ValidateSelection(documents); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &domain.Outcome{ID: "outcome-1", Action: domain.ActionBatch, Documents: documents}, nil
}

type documentsFake struct {
	retried []domain.FormDocument
	sent    []domain.FormDocument
	err     error
}

func (f *documentsFake) Retry(_ context.Context, doc domain.FormDocument) (*domain.Outcome, error) {
	f.retried = append(f.retried, doc)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Outcome{ID: "outcome-retry", Action: domain.ActionRetry, Refresh: domain.RefreshDocument}, nil
}

func (f *documentsFake) Send(_ context.Context, doc domain.FormDocument) (*domain.Outcome, error) {
	f.sent = append(f.sent, doc)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Outcome{ID: "outcome-send", Action: domain.ActionSend, Refresh: domain.RefreshDocument}, nil
}

type kudeFake struct {
	targets []domain.KudeTarget
	err     error
}

func (f *kudeFake) Fetch(_ context.Context, target domain.KudeTarget) (*domain.KudeOutcome, error) {
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.KudeOutcome{Strategy: target.Strategy(), Target: target, Success: true, Location: "/v1/kude/files/lote-7.pdf"}, nil
}

type queueFake struct {
	filters []domain.PendingFilter
	pending []domain.PendingDocument
	limits  []int
	err     error
}

func (f *queueFake) ListPending(_ context.Context, filter domain.PendingFilter) ([]domain.PendingDocument, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return f.pending, nil
}

func (f *queueFake) Preview(_ context.Context, documents domain.SelectionSet) (*domain.PreviewOutcome, error) {
	return &domain.PreviewOutcome{Preview: domain.PreviewResult{Success: true, DocumentCount: len(documents)}}, nil
}

func (f *queueFake) ResetRetries(context.Context, domain.SelectionSet) (*domain.ResetOutcome, error) {
	return &domain.ResetOutcome{Result: domain.ResetResult{Success: true}, Refresh: domain.RefreshList}, nil
}

func (f *queueFake) ListSubmissions(_ context.Context, limit int) ([]domain.SubmissionRecord, error) {
	f.limits = append(f.limits, limit)
	return []domain.SubmissionRecord{{ID: "rec-1", Action: domain.ActionBatch}}, nil
}

type submissionQueueFake struct {
	published []domain.SubmissionRequest
	err       error
}

func (f *submissionQueueFake) PublishSubmissionRequest(_ context.Context, request domain.SubmissionRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, request)
	return nil
}

func (f *submissionQueueFake) SubscribeSubmissionRequests(context.Context, func(context.Context, domain.SubmissionRequest) error) error {
	return nil
}

type kudeFilesFake struct {
	files map[string]string
}

func (f kudeFilesFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open kude", io.EOF)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type routerFixture struct {
	batches     *batchFake
	documents   *documentsFake
	kude        *kudeFake
	queue       *queueFake
	submissions *submissionQueueFake
	exported    *[]domain.PendingDocument
}

func newRouterFixture() *routerFixture {
	var exported []domain.PendingDocument
	return &routerFixture{
		batches:     &batchFake{},
		documents:   &documentsFake{},
		kude:        &kudeFake{},
		queue:       &queueFake{},
		submissions: &submissionQueueFake{},
		exported:    &exported,
	}
}

func (f *routerFixture) deps() Dependencies {
	return Dependencies{
		Batches:     f.batches,
		Documents:   f.documents,
		Kude:        f.kude,
		Queue:       f.queue,
		KudeFiles:   kudeFilesFake{files: map[string]string{"lote-7.pdf": "%PDF-1.7"}},
		Submissions: f.submissions,
		Export: func(w io.Writer, docs []domain.PendingDocument) error {
			*f.exported = docs
			_, err := w.Write([]byte("PK"))
			return err
		},
	}
}
