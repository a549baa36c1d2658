// Package projection derives read-side stock views from ledger state and material master data.
package projection

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

// StockSource lists the cached stock records of a location.
type StockSource interface {
	Records(ctx context.Context, locationID string) ([]models.StockRecord, error)
}

// MaterialSource lists material master data.
type MaterialSource interface {
	Materials(ctx context.Context) ([]models.Material, error)
}

// Service computes stock reports and low-stock alerts. It holds no state of its own.
type Service struct {
	stock     StockSource
	materials MaterialSource
	logger    *zap.Logger
}

// NewService wires a projection service.
func NewService(stock StockSource, materials MaterialSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{stock: stock, materials: materials, logger: logger}
}

// Classify grades quantity against reorderLevel.
func Classify(quantity, reorderLevel int64) models.StockStatus {
	switch {
	case quantity <= reorderLevel:
		return models.StockLow
	case quantity <= 2*reorderLevel:
		return models.StockMedium
	default:
		return models.StockGood
	}
}

// AlertLevelFor grades a quantity already at or below its reorder level.
func AlertLevelFor(quantity, reorderLevel int64) models.AlertLevel {
	// q <= 0.5*r without leaving integer arithmetic
	if 2*quantity <= reorderLevel {
		return models.AlertCritical
	}
	return models.AlertWarning
}

// GetStockReport joins every material with its stock record at locationID.
// Materials without a record report zero.
func (s *Service) GetStockReport(ctx context.Context, locationID string) ([]models.StockLine, error) {
	materials, records, err := s.load(ctx, locationID)
	if err != nil {
		return nil, err
	}

	lines := make([]models.StockLine, 0, len(materials))
	for _, m := range materials {
		rec, found := records[m.ID]
		price := m.UnitPrice.Decimal
		line := models.StockLine{
			MaterialID:   m.ID,
			Name:         m.Name,
			Code:         m.Code,
			Category:     m.Category,
			Unit:         m.Unit,
			Quantity:     rec.Quantity,
			ReorderLevel: m.ReorderLevel,
			MaxLevel:     m.MaxLevel,
			UnitPrice:    price,
			TotalValue:   price.Mul(decimal.NewFromInt(rec.Quantity)),
			Status:       Classify(rec.Quantity, m.ReorderLevel),
		}
		if found {
			updated := rec.UpdatedAt
			line.QualityGrade = rec.LastQualityGrade
			line.BatchNumber = rec.LastBatchNumber
			line.ExpiryDate = rec.ExpiryDate
			line.UpdatedAt = &updated
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// GetLowStockAlerts lists materials at or below their reorder level, lowest quantity first.
func (s *Service) GetLowStockAlerts(ctx context.Context, locationID string) ([]models.StockAlert, error) {
	materials, records, err := s.load(ctx, locationID)
	if err != nil {
		return nil, err
	}

	var alerts []models.StockAlert
	for _, m := range materials {
		qty := records[m.ID].Quantity
		if Classify(qty, m.ReorderLevel) != models.StockLow {
			continue
		}
		alerts = append(alerts, models.StockAlert{
			MaterialID:   m.ID,
			Name:         m.Name,
			Code:         m.Code,
			Unit:         m.Unit,
			Quantity:     qty,
			ReorderLevel: m.ReorderLevel,
			AlertLevel:   AlertLevelFor(qty, m.ReorderLevel),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Quantity < alerts[j].Quantity
	})
	if len(alerts) > 0 {
		s.logger.Debug("low stock detected", zap.String("location", locationID), zap.Int("alerts", len(alerts)))
	}
	return alerts, nil
}

// TotalValue sums the valuation of a report.
func TotalValue(lines []models.StockLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalValue)
	}
	return total
}

func (s *Service) load(ctx context.Context, locationID string) ([]models.Material, map[string]models.StockRecord, error) {
	materials, err := s.materials.Materials(ctx)
	if err != nil {
		return nil, nil, err
	}
	recs, err := s.stock.Records(ctx, locationID)
	if err != nil {
		return nil, nil, err
	}

	byMaterial := make(map[string]models.StockRecord, len(recs))
	for _, r := range recs {
		byMaterial[r.MaterialID] = r
	}

	sort.SliceStable(materials, func(i, j int) bool {
		return materials[i].Name < materials[j].Name
	})
	return materials, byMaterial, nil
}
