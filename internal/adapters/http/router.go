package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/core/ports"
)

const (
	serviceName     = "api"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxBodyBytes    = 1 << 20
)

// PendingExporter renders the pending queue as a spreadsheet.
type PendingExporter func(w io.Writer, docs []domain.PendingDocument) error

type Dependencies struct {
	Batches   ports.BatchSubmitter
	Documents ports.DocumentSender
	Kude      ports.KudeFetcher
	Queue     ports.QueueService
	KudeFiles ports.KudeFiles
	// Submissions is optional; without it async batch submission answers 503.
	Submissions ports.SubmissionQueue
	Export      PendingExporter
	Metrics     HTTPMetrics
}

// HTTPMetrics is the slice of the Prometheus server metrics the router uses.
type HTTPMetrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordRateLimited(service, path string)
}

type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	deps    Dependencies
	options Options
}

func NewRouter(deps Dependencies, options Options) *Router {
	return &Router{deps: deps, options: options}
}

func (rt *Router) Handler() (http.Handler, error) {
	contract, err := loadOpenAPIRouter()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("GET /v1/documents/pending", rt.listPending)
	mux.HandleFunc("GET /v1/documents/pending.xlsx", rt.exportPending)
	mux.HandleFunc("POST /v1/batches", rt.submitBatch)
	mux.HandleFunc("POST /v1/batches/preview", rt.previewPayload)
	mux.HandleFunc("POST /v1/documents/retry", rt.retryDocument)
	mux.HandleFunc("POST /v1/documents/send", rt.sendDocument)
	mux.HandleFunc("POST /v1/documents/reset-retries", rt.resetRetries)
	mux.HandleFunc("POST /v1/kude", rt.fetchKude)
	mux.HandleFunc("GET /v1/kude/files/{key}", rt.openKude)
	mux.HandleFunc("GET /v1/submissions", rt.listSubmissions)

	var onLimited func(string)
	if rt.deps.Metrics != nil {
		onLimited = func(path string) { rt.deps.Metrics.RecordRateLimited(serviceName, path) }
	}

	var handler http.Handler = openAPIValidationMiddleware(mux, contract)
	handler = backpressureMiddleware(handler, rt.options.MaxInFlight, rt.options.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst, onLimited)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPIDocument)
}

func pendingFilterFromQuery(r *http.Request) domain.PendingFilter {
	q := r.URL.Query()
	return domain.PendingFilter{
		DocumentType: domain.DocumentType(q.Get("document_type")),
		DateFrom:     q.Get("date_from"),
		DateTo:       q.Get("date_to"),
	}
}

func (rt *Router) listPending(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.deps.Queue.ListPending(r.Context(), pendingFilterFromQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) exportPending(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Export == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "export is not configured"})
		return
	}
	docs, err := rt.deps.Queue.ListPending(r.Context(), pendingFilterFromQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rt.deps.Export(&buf, docs); err != nil {
		writeError(w, r, fmt.Errorf("export pending documents: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="facturasend-pending.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type selectionRequest struct {
	Documents domain.SelectionSet `json:"documents"`
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		rt.enqueueBatch(w, r, req.Documents)
		return
	}

	outcome, err := rt.deps.Batches.SubmitBatch(r.Context(), req.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// enqueueBatch validates up front so a rejected selection never reaches the
// worker.
func (rt *Router) enqueueBatch(w http.ResponseWriter, r *http.Request, documents domain.SelectionSet) {
	if rt.deps.Submissions == nil {
		writeError(w, r, domain.WrapError(domain.ErrTemporary, "enqueue batch", errors.New("submission queue is not configured")))
		return
	}
	selection, err := domain.ValidateSelection(documents)
	if err != nil {
		writeError(w, r, err)
		return
	}

	request := domain.SubmissionRequest{
		RequestID:   requestIDFromContext(r.Context()),
		Documents:   selection,
		RequestedBy: r.Header.Get("X-Requested-By"),
		RequestedAt: time.Now().UTC(),
	}
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	if err := rt.deps.Submissions.PublishSubmissionRequest(r.Context(), request); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("batch_queued", "request_id", request.RequestID, "documents", len(selection))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": request.RequestID,
		"documents":  len(selection),
	})
}

func (rt *Router) previewPayload(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := rt.deps.Queue.Preview(r.Context(), req.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) retryDocument(w http.ResponseWriter, r *http.Request) {
	var doc domain.FormDocument
	if !decodeJSON(w, r, &doc) {
		return
	}
	doc.Status = domain.ParseRemoteStatus(string(doc.Status))
	outcome, err := rt.deps.Documents.Retry(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) sendDocument(w http.ResponseWriter, r *http.Request) {
	var doc domain.FormDocument
	if !decodeJSON(w, r, &doc) {
		return
	}
	doc.Status = domain.ParseRemoteStatus(string(doc.Status))
	outcome, err := rt.deps.Documents.Send(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) resetRetries(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := rt.deps.Queue.ResetRetries(r.Context(), req.Documents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) fetchKude(w http.ResponseWriter, r *http.Request) {
	var target domain.KudeTarget
	if !decodeJSON(w, r, &target) {
		return
	}
	out, err := rt.deps.Kude.Fetch(r.Context(), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) openKude(w http.ResponseWriter, r *http.Request) {
	if rt.deps.KudeFiles == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "kude storage is not configured"})
		return
	}
	rc, err := rt.deps.KudeFiles.Open(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("kude_stream_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) listSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := rt.deps.Queue.ListSubmissions(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": records})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
