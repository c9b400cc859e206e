package domain

import (
	"fmt"
	"strings"
)

const (
	UnknownErrorMessage   = "unknown error"
	BackendUnreachableMsg = "could not reach the invoicing backend, please try again"
)

// ItemError is a per-document failure; Index points into the submitted set.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type SubmissionResult struct {
	Success       bool        `json:"success"`
	Error         string      `json:"error,omitempty"`
	Errors        []ItemError `json:"errors,omitempty"`
	Details       []string    `json:"details,omitempty"`
	BatchID       string      `json:"batch_id,omitempty"`
	TrackingCodes []string    `json:"tracking_codes,omitempty"`
	LogName       string      `json:"log_name,omitempty"`
}

// Normalize enforces that a failed result always carries a top-level error.
func (r *SubmissionResult) Normalize() {
	r.Error = strings.TrimSpace(r.Error)
	r.BatchID = strings.TrimSpace(r.BatchID)
	if !r.Success && r.Error == "" {
		r.Error = UnknownErrorMessage
	}
}

type RetrievalResult struct {
	Success bool   `json:"success"`
	PDFURL  string `json:"pdf_url,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PreviewResult struct {
	Success       bool     `json:"success"`
	DocumentCount int      `json:"document_count"`
	PayloadJSON   string   `json:"payload_json,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type ResetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ItemFailure is an ItemError bound back to the document it refers to.
type ItemFailure struct {
	Index    int          `json:"index"`
	Error    string       `json:"error"`
	Document *DocumentRef `json:"document,omitempty"`
}

// FailureReport is the rendered form of a failed submission.
type FailureReport struct {
	Error   string        `json:"error"`
	Items   []ItemFailure `json:"items,omitempty"`
	Details []string      `json:"details,omitempty"`
}

// NewFailureReport keeps every item error in backend order with its original
// index; indexes outside the submitted set stay unbound.
func NewFailureReport(result SubmissionResult, submitted SelectionSet) FailureReport {
	report := FailureReport{
		Error:   result.Error,
		Details: append([]string(nil), result.Details...),
	}
	if report.Error == "" {
		report.Error = UnknownErrorMessage
	}
	for _, itemErr := range result.Errors {
		item := ItemFailure{Index: itemErr.Index, Error: itemErr.Error}
		if itemErr.Index >= 0 && itemErr.Index < len(submitted) {
			ref := submitted[itemErr.Index]
			item.Document = &ref
		}
		report.Items = append(report.Items, item)
	}
	return report
}

func (r FailureReport) ItemLines() []string {
	lines := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Document != nil {
			lines = append(lines, fmt.Sprintf("Document %d (%s): %s", item.Index, item.Document.String(), item.Error))
			continue
		}
		lines = append(lines, fmt.Sprintf("Document %d: %s", item.Index, item.Error))
	}
	return lines
}

// Text renders the whole report as plain text.
func (r FailureReport) Text() string {
	var b strings.Builder
	b.WriteString(r.Error)
	if lines := r.ItemLines(); len(lines) > 0 {
		b.WriteString("\nFacturaSend errors:")
		for _, line := range lines {
			b.WriteString("\n  - ")
			b.WriteString(line)
		}
	}
	if len(r.Details) > 0 {
		b.WriteString("\nDetails:")
		for _, detail := range r.Details {
			b.WriteString("\n  - ")
			b.WriteString(detail)
		}
	}
	return b.String()
}
