package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentTypeSalesInvoice DocumentType = "Sales Invoice"
	DocumentTypeCreditNote   DocumentType = "Credit Note"
	DocumentTypeDebitNote    DocumentType = "Debit Note"
)

// DocumentRef identifies one source business document in the ERP.
type DocumentRef struct {
	DocumentType DocumentType `json:"document_type"`
	DocumentID   string       `json:"document_id"`
}

func (r DocumentRef) String() string {
	return string(r.DocumentType) + " " + r.DocumentID
}

// SelectionSet is the ordered set of documents a single action works on.
type SelectionSet []DocumentRef

func (s SelectionSet) Clone() SelectionSet {
	if s == nil {
		return nil
	}
	out := make(SelectionSet, len(s))
	copy(out, s)
	return out
}

// DocumentType returns the type of the first entry, or "" for an empty set.
func (s SelectionSet) DocumentType() DocumentType {
	if len(s) == 0 {
		return ""
	}
	return s[0].DocumentType
}

func (s SelectionSet) IDs() []string {
	out := make([]string, 0, len(s))
	for _, ref := range s {
		out = append(out, ref.DocumentID)
	}
	return out
}

// RemoteStatus is the last status the invoicing backend reported for a document.
type RemoteStatus string

const (
	StatusPending   RemoteStatus = "Pending"
	StatusSubmitted RemoteStatus = "Submitted"
	StatusApproved  RemoteStatus = "Approved"
	StatusRejected  RemoteStatus = "Rejected"
	StatusError     RemoteStatus = "Error"
)

// ParseRemoteStatus maps the backend's labels (Spanish or English) to a status.
// Unknown labels are kept verbatim so they never unlock retry.
func ParseRemoteStatus(raw string) RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pendiente", "pending":
		return StatusPending
	case "enviado", "submitted":
		return StatusSubmitted
	case "aprobado", "approved":
		return StatusApproved
	case "rechazado", "rejected":
		return StatusRejected
	case "error":
		return StatusError
	default:
		return RemoteStatus(strings.TrimSpace(raw))
	}
}

// CanRetry reports whether the retry action is offered for a status.
func CanRetry(status RemoteStatus) bool {
	return status == StatusError || status == StatusRejected
}

// KudeAvailable reports whether the rendered document can be requested.
func KudeAvailable(status RemoteStatus, trackingCode string) bool {
	if strings.TrimSpace(trackingCode) == "" {
		return false
	}
	return status == StatusSubmitted || status == StatusApproved
}

// FormDocument is a single document as seen from its own form.
type FormDocument struct {
	DocumentRef
	Status       RemoteStatus `json:"remote_status"`
	TrackingCode string       `json:"tracking_code,omitempty"`
}

func (d FormDocument) CanRetry() bool {
	return CanRetry(d.Status)
}

// CanSend is true for documents never accepted by the backend, or whose last
// attempt failed.
func (d FormDocument) CanSend() bool {
	return strings.TrimSpace(d.TrackingCode) == "" || CanRetry(d.Status)
}

type PendingFilter struct {
	DocumentType DocumentType `json:"document_type,omitempty"`
	DateFrom     string       `json:"date_from,omitempty"`
	DateTo       string       `json:"date_to,omitempty"`
}

type PendingDocument struct {
	DocumentType  DocumentType    `json:"document_type"`
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	PostingDate   string          `json:"posting_date"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Currency      string          `json:"currency"`
	RemoteStatus  RemoteStatus    `json:"remote_status"`
	StatusMessage string          `json:"status_message,omitempty"`
	TrackingCode  string          `json:"tracking_code,omitempty"`
	BatchID       string          `json:"batch_id,omitempty"`
	CanRetry      bool            `json:"can_retry"`
	KudeAvailable bool            `json:"kude_available"`
}

func (d PendingDocument) Ref() DocumentRef {
	return DocumentRef{DocumentType: d.DocumentType, DocumentID: d.ID}
}
