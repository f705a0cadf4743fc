// Package handlers provides HTTP handlers for the attribution ingestion and
// query surfaces.
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors to 400 and everything else to 500.
func respondError(c *gin.Context, logger *logging.ChanneledLogger, channel logging.Channel, err error) {
	var invalidModel *attribution.InvalidModelError
	var invalidInput *attribution.InvalidInputError
	if errors.As(err, &invalidModel) || errors.As(err, &invalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.GetChannel(channel).Error("Request failed",
		"error", err.Error(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// modelParam reads the "model" query parameter, defaulting to linear when it
// is absent. A present but unknown value is an error.
func modelParam(c *gin.Context) (attribution.Model, error) {
	raw, ok := c.GetQuery("model")
	if !ok {
		return attribution.DefaultModel, nil
	}
	return attribution.ParseModel(raw)
}

// timeParam parses an optional RFC 3339 query parameter.
func timeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, &attribution.InvalidInputError{Field: name, Reason: "must be an RFC 3339 timestamp"}
	}
	t = t.UTC()
	return &t, nil
}

func intParam(c *gin.Context, name string, defaultValue int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &attribution.InvalidInputError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

func floatParam(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, &attribution.InvalidInputError{Field: name, Reason: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &attribution.InvalidInputError{Field: name, Reason: "must be a number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &attribution.InvalidInputError{Field: name, Reason: "must be a finite number"}
	}
	return v, nil
}
