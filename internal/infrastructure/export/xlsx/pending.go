package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

const (
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pendingSheet = "Pending"
)

var pendingHeader = []any{
	"Document Type", "ID", "Customer", "Posting Date", "Grand Total", "Currency",
	"Status", "Status Message", "CDC", "Batch ID", "Can Retry", "KUDE Available",
}

// WritePending renders the pending queue as a single-sheet workbook.
func WritePending(w io.Writer, docs []domain.PendingDocument) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", pendingSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(pendingSheet, "A1", &pendingHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(pendingHeader))
	if err := f.SetCellStyle(pendingSheet, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, doc := range docs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		total, _ := doc.GrandTotal.Float64()
		row := []any{
			string(doc.DocumentType), doc.ID, doc.CustomerName, doc.PostingDate, total, doc.Currency,
			string(doc.RemoteStatus), doc.StatusMessage, doc.TrackingCode, doc.BatchID, doc.CanRetry, doc.KudeAvailable,
		}
		if err := f.SetSheetRow(pendingSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(pendingSheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
