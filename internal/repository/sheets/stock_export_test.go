package sheets

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

type fakeRepo struct {
	existing [][]interface{}
	appended [][]interface{}
}

func (f *fakeRepo) AppendRows(_ context.Context, _ string, rows [][]interface{}) error {
	f.appended = append(f.appended, rows...)
	f.existing = append(f.existing, rows...)
	return nil
}

func (f *fakeRepo) ReadRange(context.Context, string) ([][]interface{}, error) {
	return f.existing, nil
}

func TestExportWritesHeaderOnce(t *testing.T) {
	repo := &fakeRepo{}
	exp := NewStockExporter(repo)
	at := time.Date(2026, 5, 8, 20, 0, 0, 0, time.UTC)
	lines := []models.StockLine{{
		Code: "CRT-40", Name: "Carton 40x30", Unit: "pcs", Quantity: 12, ReorderLevel: 20,
		Status: models.StockLow, UnitPrice: decimal.RequireFromString("1.5"), TotalValue: decimal.RequireFromString("18"),
	}}

	n, err := exp.Export(context.Background(), "materials_store", lines, at)
	if err != nil || n != 1 {
		t.Fatalf("Export: n=%d err=%v", n, err)
	}
	if len(repo.appended) != 2 || repo.appended[0][0] != "Snapshot" {
		t.Fatalf("expected header plus one row, got %v", repo.appended)
	}
	row := repo.appended[1]
	if row[0] != "2026-05-08 20:00" || row[3] != "Carton 40x30" || row[9] != "1.50" || row[10] != "18.00" {
		t.Fatalf("unexpected row %v", row)
	}

	if _, err := exp.Export(context.Background(), "materials_store", lines, at); err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if len(repo.appended) != 3 {
		t.Fatalf("header must not repeat, got %d rows", len(repo.appended))
	}
}
