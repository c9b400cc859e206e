package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/core/ports"
)

const (
	serverName    = "facturasend-workflow"
	serverVersion = "1.0.0"
)

var documentTypes = []string{
	string(domain.DocumentTypeSalesInvoice),
	string(domain.DocumentTypeCreditNote),
	string(domain.DocumentTypeDebitNote),
}

type Dependencies struct {
	Batches   ports.BatchSubmitter
	Documents ports.DocumentSender
	Kude      ports.KudeFetcher
	Queue     ports.QueueService
}

type tools struct {
	deps Dependencies
}

// NewServer exposes the workflow actions as MCP tools.
func NewServer(deps Dependencies) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	t := &tools{deps: deps}

	s.AddTool(mcp.NewTool("list_pending_documents",
		mcp.WithDescription("List documents pending submission to FacturaSend or returned with errors."),
		mcp.WithString("document_type", mcp.Description("Sales Invoice, Credit Note or Debit Note."), mcp.Enum(documentTypes...)),
		mcp.WithString("date_from", mcp.Description("Posting date lower bound, YYYY-MM-DD.")),
		mcp.WithString("date_to", mcp.Description("Posting date upper bound, YYYY-MM-DD.")),
	), t.listPending)

	s.AddTool(mcp.NewTool("submit_batch",
		mcp.WithDescription("Submit up to 50 documents of one type to FacturaSend in a single batch."),
		mcp.WithString("document_type", mcp.Required(), mcp.Enum(documentTypes...)),
		mcp.WithArray("document_ids", mcp.Required(), mcp.Description("Document names in submission order."), mcp.Items(map[string]any{"type": "string"})),
	), t.submitBatch)

	s.AddTool(mcp.NewTool("retry_document",
		mcp.WithDescription("Resubmit one document whose last status is Error or Rejected."),
		mcp.WithString("document_type", mcp.Required(), mcp.Enum(documentTypes...)),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("remote_status", mcp.Required(), mcp.Description("Last FacturaSend status of the document.")),
	), t.retryDocument)

	s.AddTool(mcp.NewTool("send_document",
		mcp.WithDescription("Submit one document that has not been sent to FacturaSend yet."),
		mcp.WithString("document_type", mcp.Required(), mcp.Enum(documentTypes...)),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("remote_status", mcp.Description("Last FacturaSend status of the document, if any.")),
	), t.sendDocument)

	s.AddTool(mcp.NewTool("reset_retries",
		mcp.WithDescription("Clear the retry counters of the selected documents so they can be resubmitted."),
		mcp.WithString("document_type", mcp.Required(), mcp.Enum(documentTypes...)),
		mcp.WithArray("document_ids", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), t.resetRetries)

	s.AddTool(mcp.NewTool("fetch_kude",
		mcp.WithDescription("Download the KUDE for a selection, a batch id or a list of CDC tracking codes. Give exactly one."),
		mcp.WithString("document_type", mcp.Enum(documentTypes...)),
		mcp.WithArray("document_ids", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("batch_id"),
		mcp.WithArray("tracking_codes", mcp.Items(map[string]any{"type": "string"})),
	), t.fetchKude)

	s.AddTool(mcp.NewTool("preview_payload",
		mcp.WithDescription("Show the FacturaSend payload the backend would send for the selected documents."),
		mcp.WithString("document_type", mcp.Required(), mcp.Enum(documentTypes...)),
		mcp.WithArray("document_ids", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), t.previewPayload)

	return s
}

func (t *tools) listPending(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := t.deps.Queue.ListPending(ctx, domain.PendingFilter{
		DocumentType: domain.DocumentType(request.GetString("document_type", "")),
		DateFrom:     request.GetString("date_from", ""),
		DateTo:       request.GetString("date_to", ""),
	})
	if err != nil {
		return toolError("list_pending_documents", err), nil
	}
	return jsonResult(map[string]any{"documents": docs})
}

func (t *tools) submitBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := t.deps.Batches.SubmitBatch(ctx, selectionFromRequest(request))
	if err != nil {
		return toolError("submit_batch", err), nil
	}
	return outcomeResult(outcome)
}

func (t *tools) retryDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := t.deps.Documents.Retry(ctx, formDocumentFromRequest(request))
	if err != nil {
		return toolError("retry_document", err), nil
	}
	return outcomeResult(outcome)
}

func (t *tools) sendDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := t.deps.Documents.Send(ctx, formDocumentFromRequest(request))
	if err != nil {
		return toolError("send_document", err), nil
	}
	return outcomeResult(outcome)
}

func (t *tools) resetRetries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := t.deps.Queue.ResetRetries(ctx, selectionFromRequest(request))
	if err != nil {
		return toolError("reset_retries", err), nil
	}
	result, err := jsonResult(out)
	if err != nil {
		return nil, err
	}
	result.IsError = !out.Result.Success
	return result, nil
}

func formDocumentFromRequest(request mcp.CallToolRequest) domain.FormDocument {
	return domain.FormDocument{
		DocumentRef: domain.DocumentRef{
			DocumentType: domain.DocumentType(request.GetString("document_type", "")),
			DocumentID:   strings.TrimSpace(request.GetString("document_id", "")),
		},
		Status: domain.ParseRemoteStatus(request.GetString("remote_status", "")),
	}
}

func (t *tools) fetchKude(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := domain.KudeTarget{
		BatchID:       strings.TrimSpace(request.GetString("batch_id", "")),
		TrackingCodes: request.GetStringSlice("tracking_codes", nil),
	}
	if ids := request.GetStringSlice("document_ids", nil); len(ids) > 0 {
		target.Documents = selectionFromRequest(request)
	}
	out, err := t.deps.Kude.Fetch(ctx, target)
	if err != nil {
		return toolError("fetch_kude", err), nil
	}
	result, err := jsonResult(out)
	if err != nil {
		return nil, err
	}
	result.IsError = !out.Success && !out.NotReady
	return result, nil
}

func (t *tools) previewPayload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := t.deps.Queue.Preview(ctx, selectionFromRequest(request))
	if err != nil {
		return toolError("preview_payload", err), nil
	}
	result, err := jsonResult(out)
	if err != nil {
		return nil, err
	}
	result.IsError = !out.Preview.Success
	return result, nil
}

func selectionFromRequest(request mcp.CallToolRequest) domain.SelectionSet {
	docType := domain.DocumentType(request.GetString("document_type", ""))
	ids := request.GetStringSlice("document_ids", nil)
	set := make(domain.SelectionSet, 0, len(ids))
	for _, id := range ids {
		set = append(set, domain.DocumentRef{DocumentType: docType, DocumentID: strings.TrimSpace(id)})
	}
	return set
}

// outcomeResult marks failed submissions as tool errors so the assistant
// does not report them as sent.
func outcomeResult(outcome *domain.Outcome) (*mcp.CallToolResult, error) {
	result, err := jsonResult(outcome)
	if err != nil {
		return nil, err
	}
	result.IsError = !outcome.Succeeded()
	return result, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func toolError(tool string, err error) *mcp.CallToolResult {
	message := err.Error()
	var selErr *domain.SelectionError
	if errors.As(err, &selErr) {
		message = domain.SelectionReason(err)
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(message)
}
