// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/container"
	"github.com/AtRiskMedia/tractstack-attribution/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/tractstack-attribution/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/tractstack-attribution/pkg/config"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware(config.CORSAllowedOrigins))

	// Initialize handlers
	ingestionHandlers := handlers.NewIngestionHandlers(container.TrackingService, container.Logger)
	attributionHandlers := handlers.NewAttributionHandlers(container.AnalyticsService, container.Logger)
	streamHandlers := handlers.NewStreamHandlers(container.Broadcaster, config.CORSAllowedOrigins, container.Logger)
	systemHandlers := handlers.NewSystemHandlers(container.Logger, container.PerfTracker)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		// Ingestion endpoints fed by upstream event producers
		api.POST("/touchpoints", ingestionHandlers.HandleTrackTouchpoint)
		api.POST("/conversions", ingestionHandlers.HandleTrackConversion)

		reporting := api.Group("")
		reporting.Use(middleware.ReportingAuthMiddleware(container.ReportingJWTSecret, container.Logger))
		{
			attribution := reporting.Group("/attribution")
			{
				attribution.GET("/content/:id", attributionHandlers.HandleContentAttribution)
				attribution.GET("/content/:id/roi", attributionHandlers.HandleContentROI)
				attribution.GET("/top", attributionHandlers.HandleTopContent)
				attribution.GET("/paths", attributionHandlers.HandleConversionPaths)
				attribution.GET("/customers/:id/ltv", attributionHandlers.HandleCustomerLifetimeValue)
				attribution.GET("/customers/:id/journey", attributionHandlers.HandleCustomerJourney)
				attribution.GET("/customers/:id/conversions", attributionHandlers.HandleCustomerConversions)
				attribution.GET("/summary", attributionHandlers.HandleSummary)
				attribution.GET("/overview", attributionHandlers.HandleOverview)
				attribution.GET("/stream", streamHandlers.HandleStream)
			}

			system := reporting.Group("/system")
			{
				system.GET("/metrics", systemHandlers.HandleMetrics)
				system.GET("/logs/levels", systemHandlers.GetLogLevels)
				system.POST("/logs/levels", systemHandlers.SetLogLevel)
			}
		}
	}

	return r
}
