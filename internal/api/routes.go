package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/api/handlers"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/services"
)

// SetupRouter builds the status API. priceWorker may be nil when the
// scheduler is disabled; the endpoints that need it answer 503.
func SetupRouter(cfg config.ServerConfig, db *gorm.DB, tracker *services.RunTracker, priceWorker *services.PriceWorker, priceService *services.PriceService, integrity *services.IntegrityReporter) *gin.Engine {
	router := gin.Default()
	router.Use(metricsMiddleware())

	// CORS configuration - allowed origins come from server.cors_origins
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	// Initialize handlers
	cardHandler := handlers.NewCardHandler(db, priceService)
	priceHandler := handlers.NewPriceHandler(priceWorker, priceService)
	runHandler := handlers.NewRunHandler(tracker, priceWorker)
	reportHandler := handlers.NewReportHandler(integrity)

	api := router.Group("/api")
	{
		cards := api.Group("/cards")
		{
			cards.GET("/search", cardHandler.SearchCards)
			cards.GET("/:id", cardHandler.GetCard)
			cards.GET("/:id/prices", priceHandler.GetProductHistory)
		}

		api.GET("/products/:id/history", priceHandler.GetProductHistory)

		runs := api.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:id", runHandler.GetRun)
			runs.POST("/:pipeline", runHandler.TriggerRun)
		}

		api.GET("/reports/integrity", reportHandler.GetIntegrityReport)

		// Scheduler status
		api.GET("/prices/status", priceHandler.GetPriceStatus)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

// metricsMiddleware records request counts and latency by route template so
// that ids do not explode label cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
