package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

// StockSheetRange is where stock snapshots are appended.
const StockSheetRange = "Stock!A:L"

var stockHeader = []interface{}{
	"Snapshot", "Location", "Code", "Material", "Category", "Unit",
	"Quantity", "Reorder level", "Status", "Unit price", "Total value", "Last batch",
}

// StockExporter appends stock report snapshots to a spreadsheet.
type StockExporter struct {
	repo Repository
}

// NewStockExporter wraps repo.
func NewStockExporter(repo Repository) *StockExporter {
	return &StockExporter{repo: repo}
}

// Export appends one row per line, preceded by the header when the sheet is empty.
// It returns the number of stock rows written.
func (e *StockExporter) Export(ctx context.Context, locationID string, lines []models.StockLine, at time.Time) (int, error) {
	existing, err := e.repo.ReadRange(ctx, "Stock!A1:A1")
	if err != nil {
		return 0, fmt.Errorf("read stock sheet header: %w", err)
	}

	rows := make([][]interface{}, 0, len(lines)+1)
	if len(existing) == 0 {
		rows = append(rows, stockHeader)
	}
	stamp := at.Format("2006-01-02 15:04")
	for _, l := range lines {
		rows = append(rows, []interface{}{
			stamp,
			locationID,
			l.Code,
			l.Name,
			l.Category,
			l.Unit,
			l.Quantity,
			l.ReorderLevel,
			string(l.Status),
			l.UnitPrice.StringFixed(2),
			l.TotalValue.StringFixed(2),
			l.BatchNumber,
		})
	}

	if err := e.repo.AppendRows(ctx, StockSheetRange, rows); err != nil {
		return 0, err
	}
	return len(lines), nil
}
