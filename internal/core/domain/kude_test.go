package domain

import (
	"errors"
	"testing"
)

func TestIsKudeNotReady(t *testing.T) {
	if !IsKudeNotReady("No se encontraron documentos para los CDC indicados") {
		t.Fatalf("expected marker to match")
	}
	if IsKudeNotReady("Error al descargar KUDEs: 500") {
		t.Fatalf("unexpected match")
	}
	if IsKudeNotReady("") {
		t.Fatalf("empty text must not match")
	}
}

func TestKudeTargetValidate(t *testing.T) {
	doc := SelectionSet{{DocumentType: DocumentTypeSalesInvoice, DocumentID: "SINV-1"}}

	if err := (KudeTarget{}).Validate(); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected empty selection, got %v", err)
	}
	if err := (KudeTarget{Documents: doc, BatchID: "9"}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for two modes, got %v", err)
	}
	if err := (KudeTarget{TrackingCodes: []string{"01", " "}}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank code, got %v", err)
	}
	if err := (KudeTarget{TrackingCodes: []string{"01"}}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKudeTargetStrategyAndLabel(t *testing.T) {
	cases := []struct {
		target   KudeTarget
		strategy KudeStrategy
		label    string
	}{
		{KudeTarget{BatchID: "B1"}, KudeByBatchID, "lote-B1"},
		{KudeTarget{TrackingCodes: []string{"01"}}, KudeByTrackingCodes, "cdc-01"},
		{KudeTarget{TrackingCodes: []string{"01", "02"}}, KudeByTrackingCodes, "cdc-01-and-more"},
		{KudeTarget{Documents: SelectionSet{{DocumentType: DocumentTypeDebitNote, DocumentID: "DN-1"}}}, KudeBySelection, "kude-DN-1"},
	}
	for _, c := range cases {
		if got := c.target.Strategy(); got != c.strategy {
			t.Fatalf("Strategy() = %s, want %s", got, c.strategy)
		}
		if got := c.target.Label(); got != c.label {
			t.Fatalf("Label() = %s, want %s", got, c.label)
		}
	}
}
