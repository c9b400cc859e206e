package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

type backendFake struct {
	mu sync.Mutex

	submitted   []domain.SelectionSet
	byBatch     []string
	byCodes     [][]string
	bySelection []domain.SelectionSet
	previews    []domain.SelectionSet
	resets      []domain.SelectionSet
	filters     []domain.PendingFilter

	submitResult domain.SubmissionResult
	submitErr    error
	kudeResult   domain.RetrievalResult
	kudeErr      error
	preview      domain.PreviewResult
	previewErr   error
	reset        domain.ResetResult
	resetErr     error
	pending      []domain.PendingDocument
	pendingErr   error
}

func (f *backendFake) ListPending(_ context.Context, filter domain.PendingFilter) ([]domain.PendingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.pending, f.pendingErr
}

func (f *backendFake) SubmitBatch(_ context.Context, documents domain.SelectionSet) (domain.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, documents.Clone())
	return f.submitResult, f.submitErr
}

func (f *backendFake) PreviewPayload(_ context.Context, documents domain.SelectionSet) (domain.PreviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews = append(f.previews, documents.Clone())
	return f.preview, f.previewErr
}

func (f *backendFake) FetchKudeBySelection(_ context.Context, documents domain.SelectionSet) (domain.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bySelection = append(f.bySelection, documents.Clone())
	return f.kudeResult, f.kudeErr
}

func (f *backendFake) FetchKudeByBatchID(_ context.Context, batchID string) (domain.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byBatch = append(f.byBatch, batchID)
	return f.kudeResult, f.kudeErr
}

func (f *backendFake) FetchKudeByTrackingCodes(_ context.Context, codes []string) (domain.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byCodes = append(f.byCodes, append([]string(nil), codes...))
	return f.kudeResult, f.kudeErr
}

func (f *backendFake) ResetRetries(_ context.Context, documents domain.SelectionSet) (domain.ResetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, documents.Clone())
	return f.reset, f.resetErr
}

func (f *backendFake) kudeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byBatch) + len(f.byCodes) + len(f.bySelection)
}

type openerFake struct {
	labels []string
	urls   []string
	err    error
}

func (f *openerFake) Materialize(_ context.Context, label, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.labels = append(f.labels, label)
	f.urls = append(f.urls, url)
	return "/v1/kude/files/" + label + ".pdf", nil
}

type journalFake struct {
	records []domain.SubmissionRecord
	err     error
}

func (f *journalFake) Record(_ context.Context, record domain.SubmissionRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *journalFake) ListRecent(_ context.Context, limit int) ([]domain.SubmissionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type eventsFake struct {
	outcomes []*domain.Outcome
	err      error
}

func (f *eventsFake) PublishOutcome(_ context.Context, outcome *domain.Outcome) error {
	if f.err != nil {
		return f.err
	}
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

type observerFake struct {
	submissions []string
	kude        []string
}

func (f *observerFake) ObserveSubmission(action domain.Action, success bool, _ int, _ time.Duration) {
	state := "failed"
	if success {
		state = "ok"
	}
	f.submissions = append(f.submissions, string(action)+":"+state)
}

func (f *observerFake) ObserveKude(strategy domain.KudeStrategy, result string) {
	f.kude = append(f.kude, string(strategy)+":"+result)
}

// waitRecorder replaces the settle delay so tests never sleep.
type waitRecorder struct {
	calls []time.Duration
	err   error
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.calls = append(w.calls, d)
	return w.err
}

var errBackendDown = errors.New("dial tcp: connection refused")

func invoices(ids ...string) domain.SelectionSet {
	out := make(domain.SelectionSet, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.DocumentRef{DocumentType: domain.DocumentTypeSalesInvoice, DocumentID: id})
	}
	return out
}

func newWorkflow(backend *backendFake, opts SubmissionOptions) (*SubmissionUseCase, *waitRecorder) {
	kude := NewKudeUseCase(backend, nil, opts.Observer)
	uc := NewSubmissionUseCase(backend, kude, opts)
	w := &waitRecorder{}
	uc.wait = w.wait
	uc.newID = func() string { return "outcome-1" }
	return uc, w
}

func hasNotice(notices []domain.Notice, level domain.NoticeLevel, fragment string) bool {
	for _, n := range notices {
		if n.Level != level {
			continue
		}
		if fragment == "" || containsText(n, fragment) {
			return true
		}
	}
	return false
}

func containsText(n domain.Notice, fragment string) bool {
	if strings.Contains(n.Title, fragment) || strings.Contains(n.Message, fragment) {
		return true
	}
	for _, s := range append(append([]string(nil), n.Items...), n.Details...) {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}
