package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/services"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// IngestionHandlers accepts touchpoint and conversion events
type IngestionHandlers struct {
	trackingService *services.TrackingService
	logger          *logging.ChanneledLogger
}

// NewIngestionHandlers creates ingestion handlers with injected dependencies
func NewIngestionHandlers(trackingService *services.TrackingService, logger *logging.ChanneledLogger) *IngestionHandlers {
	return &IngestionHandlers{
		trackingService: trackingService,
		logger:          logger,
	}
}

type touchpointRequest struct {
	UserID    string         `json:"userId" binding:"required"`
	ContentID string         `json:"contentId" binding:"required"`
	SessionID string         `json:"sessionId"`
	Timestamp *time.Time     `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

type conversionRequest struct {
	UserID         string         `json:"userId" binding:"required"`
	ConversionType string         `json:"conversionType" binding:"required"`
	Revenue        *float64       `json:"revenue" binding:"required"`
	Timestamp      *time.Time     `json:"timestamp"`
	Metadata       map[string]any `json:"metadata"`
}

// HandleTrackTouchpoint handles POST /api/v1/touchpoints
func (h *IngestionHandlers) HandleTrackTouchpoint(c *gin.Context) {
	var req touchpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid touchpoint: " + err.Error()})
		return
	}

	in := services.TouchpointInput{
		UserID:    req.UserID,
		ContentID: req.ContentID,
		SessionID: req.SessionID,
		Metadata:  req.Metadata,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	touchpoint, err := h.trackingService.TrackTouchpoint(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, logging.ChannelIngest, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"touchpoint": touchpoint})
}

// HandleTrackConversion handles POST /api/v1/conversions
func (h *IngestionHandlers) HandleTrackConversion(c *gin.Context) {
	var req conversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversion: " + err.Error()})
		return
	}

	in := services.ConversionInput{
		UserID:         req.UserID,
		ConversionType: req.ConversionType,
		Revenue:        *req.Revenue,
		Metadata:       req.Metadata,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	conversion, err := h.trackingService.TrackConversion(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, logging.ChannelIngest, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversion": conversion})
}
