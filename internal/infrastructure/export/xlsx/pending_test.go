package xlsx

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

func TestWritePending(t *testing.T) {
	docs := []domain.PendingDocument{
		{
			DocumentType: domain.DocumentTypeSalesInvoice,
			ID:           "SINV-1",
			CustomerName: "ACME S.A.",
			PostingDate:  "2026-10-01",
			GrandTotal:   decimal.RequireFromString("150000.50"),
			Currency:     "PYG",
			RemoteStatus: domain.StatusError,
			CanRetry:     true,
		},
		{
			DocumentType:  domain.DocumentTypeSalesInvoice,
			ID:            "SINV-2",
			RemoteStatus:  domain.StatusApproved,
			TrackingCode:  "0144",
			KudeAvailable: true,
		},
	}

	var buf bytes.Buffer
	if err := WritePending(&buf, docs); err != nil {
		t.Fatalf("WritePending() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(pendingSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Document Type" || rows[0][8] != "CDC" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "SINV-1" || rows[1][4] != "150000.5" || rows[1][10] != "TRUE" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][6] != "Approved" || rows[2][8] != "0144" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}

func TestWritePendingEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePending(&buf, nil); err != nil {
		t.Fatalf("WritePending() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a workbook even without rows")
	}
}
