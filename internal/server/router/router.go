package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Materials     *handlers.MaterialHandler
	Stock         *handlers.StockHandler
	Transfers     *handlers.TransferHandler
	Purchases     *handlers.PurchaseHandler
	Quality       *handlers.QualityHandler
	Notifications *handlers.NotificationHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(models.MoneyValue, models.Money{})
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	materials := api.Group("/materials")
	materials.GET("", h.Materials.List)
	materials.GET("/:id", h.Materials.Get)
	materials.PUT("/:id", h.Materials.Put)

	stock := api.Group("/stock")
	stock.POST("/movements", h.Stock.RecordMovement)
	stock.GET("/:location", h.Stock.Report)
	stock.GET("/:location/alerts", h.Stock.Alerts)
	stock.GET("/:location/materials/:material/movements", h.Stock.Movements)
	stock.GET("/:location/materials/:material/reconcile", h.Stock.Reconcile)

	internal := api.Group("/internal-requests")
	internal.POST("", h.Transfers.Create)
	internal.GET("", h.Transfers.List)
	internal.GET("/:id", h.Transfers.Get)
	internal.POST("/:id/fulfill", h.Transfers.Fulfill)
	internal.POST("/:id/cancel", h.Transfers.Cancel)

	dispatches := api.Group("/dispatches")
	dispatches.POST("", h.Transfers.Dispatch)
	dispatches.GET("", h.Transfers.Dispatches)

	purchases := api.Group("/purchase-requests")
	purchases.POST("", h.Purchases.Create)
	purchases.GET("", h.Purchases.List)
	purchases.GET("/:id", h.Purchases.Get)
	purchases.GET("/:id/allocation", h.Purchases.Allocation)
	purchases.POST("/:id/ho-approve", h.Purchases.HOApprove)
	purchases.POST("/:id/ho-reject", h.Purchases.HOReject)
	purchases.POST("/:id/forward", h.Purchases.ForwardToMD)
	purchases.POST("/:id/md-approve", h.Purchases.MDApprove)
	purchases.POST("/:id/md-reject", h.Purchases.MDReject)
	purchases.POST("/:id/allocate", h.Purchases.Allocate)
	purchases.POST("/:id/complete", h.Purchases.Complete)

	qc := api.Group("/qc-inspections")
	qc.POST("", h.Quality.Inspect)
	qc.GET("", h.Quality.List)
	qc.GET("/:id", h.Quality.Get)

	inbox := api.Group("/notifications")
	inbox.GET("", h.Notifications.List)
	inbox.POST("/:id/read", h.Notifications.MarkRead)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_id", c.GetHeader(handlers.HeaderUserID)))
	}
}
