package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/services"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// AttributionHandlers serves the read-side attribution queries
type AttributionHandlers struct {
	analyticsService *services.AttributionAnalyticsService
	logger           *logging.ChanneledLogger
}

// NewAttributionHandlers creates attribution query handlers with injected dependencies
func NewAttributionHandlers(analyticsService *services.AttributionAnalyticsService, logger *logging.ChanneledLogger) *AttributionHandlers {
	return &AttributionHandlers{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

func (h *AttributionHandlers) fail(c *gin.Context, err error) {
	respondError(c, h.logger, logging.ChannelAnalytics, err)
}

// HandleContentAttribution handles GET /api/v1/attribution/content/:id
func (h *AttributionHandlers) HandleContentAttribution(c *gin.Context) {
	start := time.Now()
	h.logger.Analytics().Debug("Received content attribution request", "method", c.Request.Method, "path", c.Request.URL.Path)

	model, err := modelParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	from, err := timeParam(c, "start")
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := timeParam(c, "end")
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.analyticsService.GetContentAttribution(c.Request.Context(), c.Param("id"), model, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Analytics().Info("Content attribution request completed", "contentId", result.ContentID, "model", model, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"attribution": result})
}

// HandleTopContent handles GET /api/v1/attribution/top
func (h *AttributionHandlers) HandleTopContent(c *gin.Context) {
	model, err := modelParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := intParam(c, "limit", services.DefaultTopContentLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	from, err := timeParam(c, "start")
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := timeParam(c, "end")
	if err != nil {
		h.fail(c, err)
		return
	}

	content, err := h.analyticsService.GetTopRevenueContent(c.Request.Context(), limit, model, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": model, "content": content})
}

// HandleContentROI handles GET /api/v1/attribution/content/:id/roi
func (h *AttributionHandlers) HandleContentROI(c *gin.Context) {
	model, err := modelParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	cost, err := floatParam(c, "cost")
	if err != nil {
		h.fail(c, err)
		return
	}

	roi, err := h.analyticsService.CalculateROI(c.Request.Context(), c.Param("id"), cost, model)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roi": roi})
}

// HandleConversionPaths handles GET /api/v1/attribution/paths
func (h *AttributionHandlers) HandleConversionPaths(c *gin.Context) {
	minTouchpoints, err := intParam(c, "minTouchpoints", services.DefaultMinPathLength)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := intParam(c, "limit", services.DefaultPathLimit)
	if err != nil {
		h.fail(c, err)
		return
	}

	paths, err := h.analyticsService.AnalyzeConversionPaths(c.Request.Context(), minTouchpoints, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

// HandleCustomerLifetimeValue handles GET /api/v1/attribution/customers/:id/ltv
func (h *AttributionHandlers) HandleCustomerLifetimeValue(c *gin.Context) {
	clv, err := h.analyticsService.GetCustomerLifetimeValue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": clv})
}

// HandleCustomerJourney handles GET /api/v1/attribution/customers/:id/journey
func (h *AttributionHandlers) HandleCustomerJourney(c *gin.Context) {
	at, err := timeParam(c, "at")
	if err != nil {
		h.fail(c, err)
		return
	}
	if at == nil {
		now := time.Now().UTC()
		at = &now
	}
	lookbackDays, err := intParam(c, "lookbackDays", 0)
	if err != nil {
		h.fail(c, err)
		return
	}

	journey, err := h.analyticsService.GetUserJourney(c.Request.Context(), c.Param("id"), *at, lookbackDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": c.Param("id"), "at": at, "journey": journey})
}

// HandleCustomerConversions handles GET /api/v1/attribution/customers/:id/conversions
func (h *AttributionHandlers) HandleCustomerConversions(c *gin.Context) {
	conversions, err := h.analyticsService.ListUserConversions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversions": conversions})
}

// HandleSummary handles GET /api/v1/attribution/summary
func (h *AttributionHandlers) HandleSummary(c *gin.Context) {
	summary, err := h.analyticsService.GetAttributionSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// HandleOverview handles GET /api/v1/attribution/overview
func (h *AttributionHandlers) HandleOverview(c *gin.Context) {
	model, err := modelParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := intParam(c, "limit", services.DefaultTopContentLimit)
	if err != nil {
		h.fail(c, err)
		return
	}

	overview, err := h.analyticsService.GetOverview(c.Request.Context(), model, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overview": overview})
}
