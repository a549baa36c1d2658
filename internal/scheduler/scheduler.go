package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/config"
	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/service/notification"
)

// StockReports is the projection the periodic jobs read.
type StockReports interface {
	GetStockReport(ctx context.Context, locationID string) ([]models.StockLine, error)
	GetLowStockAlerts(ctx context.Context, locationID string) ([]models.StockAlert, error)
}

// ReportExporter ships a stock snapshot somewhere outside the system.
type ReportExporter interface {
	Export(ctx context.Context, locationID string, lines []models.StockLine, at time.Time) (int, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	reports  StockReports
	exporter ReportExporter
	events   notification.Emitter
	cfg      config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance. exporter may be nil when no
// spreadsheet is configured.
func NewScheduler(cfg config.Config, reports StockReports, exporter ReportExporter, events notification.Emitter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = notification.Discard{}
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	// Standard 5-field cron expressions, evaluated in the configured timezone.
	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:     c,
		reports:  reports,
		exporter: exporter,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().In(loc) },
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(s.cfg.Scheduler.LowStockCron, s.job("low stock sweep", s.RunLowStockSweep)); err != nil {
		return fmt.Errorf("schedule low stock sweep: %w", err)
	}

	if s.exporter != nil && s.cfg.Scheduler.StockExportCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.StockExportCron, s.job("stock export", s.RunStockExport)); err != nil {
			return fmt.Errorf("schedule stock export: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) job(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Info("scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	}
}

// RunLowStockSweep notifies each location's manager about materials at or below
// their reorder level.
func (s *Scheduler) RunLowStockSweep(ctx context.Context) error {
	targets := []struct {
		location string
		role     string
	}{
		{s.cfg.Locations.Store, models.RoleStoreManager},
		{s.cfg.Locations.Packing, models.RolePackingManager},
	}

	for _, target := range targets {
		alerts, err := s.reports.GetLowStockAlerts(ctx, target.location)
		if err != nil {
			return fmt.Errorf("low stock alerts for %s: %w", target.location, err)
		}
		if len(alerts) == 0 {
			continue
		}

		s.events.Emit(ctx, models.Event{
			Type:        models.EventLowStock,
			ReferenceID: target.location,
			Message:     lowStockMessage(target.location, alerts),
			Roles:       []string{target.role},
			OccurredAt:  s.now().UTC(),
		})
		s.logger.Info("low stock alerts emitted", zap.String("location", target.location), zap.Int("alerts", len(alerts)))
	}
	return nil
}

// RunStockExport appends the materials store report to the spreadsheet.
func (s *Scheduler) RunStockExport(ctx context.Context) error {
	if s.exporter == nil {
		return nil
	}
	lines, err := s.reports.GetStockReport(ctx, s.cfg.Locations.Store)
	if err != nil {
		return fmt.Errorf("stock report: %w", err)
	}
	n, err := s.exporter.Export(ctx, s.cfg.Locations.Store, lines, s.now())
	if err != nil {
		return fmt.Errorf("export stock report: %w", err)
	}
	s.logger.Info("stock report exported", zap.Int("rows", n))
	return nil
}

func lowStockMessage(location string, alerts []models.StockAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Low stock at %s:", location)
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n- %s: %d %s (reorder at %d, %s)", a.Name, a.Quantity, a.Unit, a.ReorderLevel, a.AlertLevel)
	}
	return b.String()
}
