package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/config"
	"github.com/mamadbah2/packflow/internal/lock"
	"github.com/mamadbah2/packflow/internal/repository/catalog"
	"github.com/mamadbah2/packflow/internal/repository/mongodb"
	"github.com/mamadbah2/packflow/internal/repository/sheets"
	"github.com/mamadbah2/packflow/internal/scheduler"
	"github.com/mamadbah2/packflow/internal/server/handlers"
	"github.com/mamadbah2/packflow/internal/server/router"
	"github.com/mamadbah2/packflow/internal/service/ledger"
	"github.com/mamadbah2/packflow/internal/service/notification"
	"github.com/mamadbah2/packflow/internal/service/projection"
	"github.com/mamadbah2/packflow/internal/service/purchasing"
	"github.com/mamadbah2/packflow/internal/service/quality"
	"github.com/mamadbah2/packflow/internal/service/transfer"
	whatsappclient "github.com/mamadbah2/packflow/pkg/clients/whatsapp"
	"github.com/mamadbah2/packflow/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	mongoRepo, err := mongodb.NewMongoDBRepository(startCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()
	if err := mongoRepo.EnsureIndexes(startCtx); err != nil {
		baseLogger.Warn("failed to ensure mongodb indexes", zap.Error(err))
	}

	// Stock locks: redis when configured so several instances serialize on the same records.
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Address != "" {
		rdb, err := lock.Connect(startCtx, cfg.Redis.Address)
		if err != nil {
			baseLogger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL, baseLogger.Named("lock.redis"))
		baseLogger.Info("redis stock locks enabled", zap.String("address", cfg.Redis.Address))
	} else {
		baseLogger.Warn("redis address missing, stock locks are local to this instance")
	}

	// Notification sinks.
	inbox := notification.NewInbox(mongoRepo)
	sinks := []notification.Sink{inbox}
	if len(cfg.Kafka.Brokers) > 0 {
		writer := notification.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := writer.Close(); err != nil {
				baseLogger.Error("failed to close kafka writer", zap.Error(err))
			}
		}()
		sinks = append(sinks, notification.NewKafkaSink(writer))
		baseLogger.Info("kafka event publication enabled", zap.String("topic", cfg.Kafka.Topic))
	}
	if cfg.WhatsApp.Enabled() {
		sinks = append(sinks, notification.NewWhatsAppSink(whatsappclient.NewClient(cfg.WhatsApp), baseLogger.Named("notify.whatsapp")))
		baseLogger.Info("whatsapp notifications enabled")
	}

	bus := notification.NewBus(notification.NewStoreDirectory(mongoRepo), sinks, cfg.Notifications.Buffer, cfg.Notifications.Timeout, baseLogger.Named("notify.bus"))
	bus.Start()
	defer bus.Stop()

	materials := catalog.New(mongoRepo)
	stockLedger := ledger.NewService(mongoRepo, baseLogger.Named("svc.ledger"))
	reports := projection.NewService(stockLedger, materials, baseLogger.Named("svc.projection"))
	transferSvc := transfer.NewService(mongoRepo, stockLedger, materials, locker, bus, baseLogger.Named("svc.transfer"))
	purchasingSvc := purchasing.NewService(mongoRepo, materials, bus, baseLogger.Named("svc.purchasing"))
	qualitySvc := quality.NewService(mongoRepo, stockLedger, materials, purchasingSvc, baseLogger.Named("svc.quality"))

	engine := router.New(router.Handlers{
		Materials:     handlers.NewMaterialHandler(materials, baseLogger.Named("handlers.materials")),
		Stock:         handlers.NewStockHandler(stockLedger, reports, materials, baseLogger.Named("handlers.stock")),
		Transfers:     handlers.NewTransferHandler(transferSvc, cfg.Locations.Store, baseLogger.Named("handlers.transfers")),
		Purchases:     handlers.NewPurchaseHandler(purchasingSvc, baseLogger.Named("handlers.purchases")),
		Quality:       handlers.NewQualityHandler(qualitySvc, cfg.Locations.Store, baseLogger.Named("handlers.quality")),
		Notifications: handlers.NewNotificationHandler(inbox, baseLogger.Named("handlers.notifications")),
	}, baseLogger.Named("router"))

	var exporter scheduler.ReportExporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(startCtx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = sheets.NewStockExporter(sheetsRepo)
	} else {
		baseLogger.Warn("google sheets not configured, stock export disabled")
	}

	sched, err := scheduler.NewScheduler(*cfg, reports, exporter, bus, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
