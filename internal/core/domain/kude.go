package domain

import (
	"errors"
	"strings"
)

// kudeNotFoundMarker is the text the backend returns while FacturaSend is
// still rendering the document.
const kudeNotFoundMarker = "No se encontraron"

// IsKudeNotReady is the only place that interprets retrieval error text.
func IsKudeNotReady(errText string) bool {
	return strings.Contains(errText, kudeNotFoundMarker)
}

type KudeStrategy string

const (
	KudeBySelection     KudeStrategy = "selection"
	KudeByBatchID       KudeStrategy = "batch_id"
	KudeByTrackingCodes KudeStrategy = "tracking_codes"
)

// KudeTarget addresses rendered documents in exactly one of three ways.
type KudeTarget struct {
	Documents     SelectionSet `json:"documents,omitempty"`
	BatchID       string       `json:"batch_id,omitempty"`
	TrackingCodes []string     `json:"tracking_codes,omitempty"`
}

func (t KudeTarget) Strategy() KudeStrategy {
	switch {
	case strings.TrimSpace(t.BatchID) != "":
		return KudeByBatchID
	case len(t.TrackingCodes) > 0:
		return KudeByTrackingCodes
	default:
		return KudeBySelection
	}
}

func (t KudeTarget) Validate() error {
	modes := 0
	if len(t.Documents) > 0 {
		modes++
	}
	if strings.TrimSpace(t.BatchID) != "" {
		modes++
	}
	if len(t.TrackingCodes) > 0 {
		modes++
	}
	switch {
	case modes > 1:
		return WrapError(ErrInvalidInput, "kude target", errors.New("use only one of documents, batch_id or tracking_codes"))
	case modes == 0:
		return &SelectionError{Reason: ErrEmptySelection}
	}
	for _, code := range t.TrackingCodes {
		if strings.TrimSpace(code) == "" {
			return WrapError(ErrInvalidInput, "kude target", errors.New("empty tracking code"))
		}
	}
	if len(t.Documents) > 0 {
		return RequireSelection(t.Documents)
	}
	return nil
}

// Label names the rendered file for the user.
func (t KudeTarget) Label() string {
	switch t.Strategy() {
	case KudeByBatchID:
		return "lote-" + strings.TrimSpace(t.BatchID)
	case KudeByTrackingCodes:
		if len(t.TrackingCodes) == 1 {
			return "cdc-" + t.TrackingCodes[0]
		}
		return "cdc-" + t.TrackingCodes[0] + "-and-more"
	default:
		if len(t.Documents) == 1 {
			return "kude-" + t.Documents[0].DocumentID
		}
		if len(t.Documents) > 1 {
			return "kude-" + t.Documents[0].DocumentID + "-and-more"
		}
		return "kude"
	}
}

// KudeOutcome is the user-visible result of one retrieval request.
type KudeOutcome struct {
	Strategy KudeStrategy `json:"strategy"`
	Target   KudeTarget   `json:"target"`
	Success  bool         `json:"success"`
	NotReady bool         `json:"not_ready,omitempty"`
	Location string       `json:"location,omitempty"`
	Error    string       `json:"error,omitempty"`
	Notices  []Notice     `json:"notices"`
}
