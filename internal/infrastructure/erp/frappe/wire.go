package frappe

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

// flexString accepts a JSON string or number; the backend sends lote ids as
// either depending on where they came from.
type flexString string

func (s *flexString) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*s = ""
		return nil
	}
	if raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexInt accepts 3 or "3".
type flexInt int

func (i *flexInt) UnmarshalJSON(raw []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(raw); err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil {
		return err
	}
	*i = flexInt(n)
	return nil
}

type wireDocument struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

func toWireDocuments(set domain.SelectionSet) []wireDocument {
	out := make([]wireDocument, 0, len(set))
	for _, ref := range set {
		out = append(out, wireDocument{Doctype: string(ref.DocumentType), Name: ref.DocumentID})
	}
	return out
}

type documentsArgs struct {
	Documents []wireDocument `json:"documents"`
}

type pendingArgs struct {
	TipoDocumento string `json:"tipo_documento,omitempty"`
	DesdeFecha    string `json:"desde_fecha,omitempty"`
	HastaFecha    string `json:"hasta_fecha,omitempty"`
}

type wirePending struct {
	Doctype       string              `json:"doctype"`
	Name          string              `json:"name"`
	CustomerName  string              `json:"customer_name"`
	PostingDate   string              `json:"posting_date"`
	GrandTotal    decimal.NullDecimal `json:"grand_total"`
	Currency      string              `json:"currency"`
	CDC           *string             `json:"facturasend_cdc"`
	Estado        *string             `json:"facturasend_estado"`
	MensajeEstado *string             `json:"facturasend_mensaje_estado"`
	LoteID        flexString          `json:"facturasend_lote_id"`
}

func (w wirePending) toDomain() domain.PendingDocument {
	doc := domain.PendingDocument{
		DocumentType:  domain.DocumentType(w.Doctype),
		ID:            w.Name,
		CustomerName:  w.CustomerName,
		PostingDate:   w.PostingDate,
		Currency:      w.Currency,
		RemoteStatus:  domain.ParseRemoteStatus(deref(w.Estado)),
		StatusMessage: deref(w.MensajeEstado),
		TrackingCode:  strings.TrimSpace(deref(w.CDC)),
		BatchID:       strings.TrimSpace(string(w.LoteID)),
	}
	if w.GrandTotal.Valid {
		doc.GrandTotal = w.GrandTotal.Decimal
	}
	return doc
}

type wireItemError struct {
	Index flexInt `json:"index"`
	Error string  `json:"error"`
}

type wireSubmission struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Errores []wireItemError `json:"errores"`
	Errors  []wireItemError `json:"errors"`
	Details []string        `json:"details"`
	LoteID  flexString      `json:"lote_id"`
	CDCs    []string        `json:"cdcs"`
	LogName string          `json:"log_name"`
}

func (w wireSubmission) toDomain() domain.SubmissionResult {
	result := domain.SubmissionResult{
		Success: w.Success,
		Error:   w.Error,
		Details: w.Details,
		BatchID: string(w.LoteID),
		LogName: w.LogName,
	}
	items := w.Errores
	if len(items) == 0 {
		items = w.Errors
	}
	for _, item := range items {
		result.Errors = append(result.Errors, domain.ItemError{Index: int(item.Index), Error: item.Error})
	}
	for _, code := range w.CDCs {
		if code = strings.TrimSpace(code); code != "" {
			result.TrackingCodes = append(result.TrackingCodes, code)
		}
	}
	return result
}

type wirePreview struct {
	Success       bool     `json:"success"`
	DocumentCount int      `json:"document_count"`
	PayloadJSON   string   `json:"payload_json"`
	Errors        []string `json:"errors"`
	Error         string   `json:"error"`
}

func (w wirePreview) toDomain() domain.PreviewResult {
	return domain.PreviewResult{
		Success:       w.Success,
		DocumentCount: w.DocumentCount,
		PayloadJSON:   w.PayloadJSON,
		Errors:        w.Errors,
		Error:         w.Error,
	}
}

type wireRetrieval struct {
	Success bool   `json:"success"`
	PDFURL  string `json:"pdf_url"`
	Error   string `json:"error"`
}

func (w wireRetrieval) toDomain() domain.RetrievalResult {
	return domain.RetrievalResult{Success: w.Success, PDFURL: w.PDFURL, Error: w.Error}
}

type wireReset struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
