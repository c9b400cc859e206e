package frappe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/resilience"
)

const (
	methodPending      = "get_pending_documents"
	methodSubmit       = "send_batch_to_facturasend"
	methodPreview      = "preview_facturasend_payload"
	methodKudeBatch    = "download_batch_kude"
	methodKudeLote     = "download_lote_kude"
	methodKudeCDC      = "download_kude_by_cdc"
	methodResetRetry   = "reset_document_retries"
	defaultHTTPTimeout = 60 * time.Second
)

// Client calls the integration's whitelisted methods on a Frappe site.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	APIKey             string
	APISecret          string
	Timeout            time.Duration
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     options.APIKey,
		apiSecret:  options.APISecret,
		httpClient: httpClient,
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) ListPending(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingDocument, error) {
	args := pendingArgs{
		TipoDocumento: string(filter.DocumentType),
		DesdeFecha:    filter.DateFrom,
		HastaFecha:    filter.DateTo,
	}
	var rows []wirePending
	if err := c.execute(ctx, methodPending, args, &rows, classifyFrappeError); err != nil {
		return nil, err
	}
	out := make([]domain.PendingDocument, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// SubmitBatch is never retried: a timed-out submission may still have
// reached FacturaSend.
func (c *Client) SubmitBatch(ctx context.Context, documents domain.SelectionSet) (domain.SubmissionResult, error) {
	var resp wireSubmission
	err := c.execute(ctx, methodSubmit, documentsArgs{Documents: toWireDocuments(documents)}, &resp,
		resilience.WithoutRetry(classifyFrappeError))
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) PreviewPayload(ctx context.Context, documents domain.SelectionSet) (domain.PreviewResult, error) {
	var resp wirePreview
	if err := c.execute(ctx, methodPreview, documentsArgs{Documents: toWireDocuments(documents)}, &resp, classifyFrappeError); err != nil {
		return domain.PreviewResult{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) FetchKudeBySelection(ctx context.Context, documents domain.SelectionSet) (domain.RetrievalResult, error) {
	var resp wireRetrieval
	if err := c.execute(ctx, methodKudeBatch, documentsArgs{Documents: toWireDocuments(documents)}, &resp, classifyFrappeError); err != nil {
		return domain.RetrievalResult{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) FetchKudeByBatchID(ctx context.Context, batchID string) (domain.RetrievalResult, error) {
	args := struct {
		LoteID string `json:"lote_id"`
	}{LoteID: batchID}
	var resp wireRetrieval
	if err := c.execute(ctx, methodKudeLote, args, &resp, classifyFrappeError); err != nil {
		return domain.RetrievalResult{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) FetchKudeByTrackingCodes(ctx context.Context, codes []string) (domain.RetrievalResult, error) {
	args := struct {
		CDCs []string `json:"cdcs"`
	}{CDCs: codes}
	var resp wireRetrieval
	if err := c.execute(ctx, methodKudeCDC, args, &resp, classifyFrappeError); err != nil {
		return domain.RetrievalResult{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) ResetRetries(ctx context.Context, documents domain.SelectionSet) (domain.ResetResult, error) {
	var resp wireReset
	if err := c.execute(ctx, methodResetRetry, documentsArgs{Documents: toWireDocuments(documents)}, &resp, classifyFrappeError); err != nil {
		return domain.ResetResult{}, err
	}
	return domain.ResetResult{Success: resp.Success, Message: resp.Message, Error: resp.Error}, nil
}

func (c *Client) execute(ctx context.Context, method string, args, out any, classifier resilience.ErrorClassifier) error {
	call := func(callCtx context.Context) error {
		return c.call(callCtx, method, args, out)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "frappe."+method, call, classifier)
	} else {
		err = call(ctx)
	}
	return wrapKind("frappe "+method, err)
}
