package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
)

// JourneyService reconstructs the ordered, time-windowed touchpoints that
// lead up to a moment in a user's history.
type JourneyService struct {
	touchpoints  attribution.TouchpointRepository
	lookbackDays int
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewJourneyService creates a journey service. A lookback of zero or less
// uses attribution.DefaultLookbackDays.
func NewJourneyService(touchpoints attribution.TouchpointRepository, lookbackDays int, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *JourneyService {
	if lookbackDays <= 0 {
		lookbackDays = attribution.DefaultLookbackDays
	}
	return &JourneyService{
		touchpoints:  touchpoints,
		lookbackDays: lookbackDays,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// LookbackDays returns the window applied when callers pass none.
func (s *JourneyService) LookbackDays() int {
	return s.lookbackDays
}

// GetUserJourney returns userID's touchpoints in
// [conversionTime - lookbackDays, conversionTime], sorted by timestamp and
// then sequence id. lookbackDays <= 0 selects the configured default.
func (s *JourneyService) GetUserJourney(ctx context.Context, userID string, conversionTime time.Time, lookbackDays int) ([]*attribution.Touchpoint, error) {
	marker := s.perfTracker.StartOperation("get_user_journey")
	defer marker.Complete()

	if lookbackDays <= 0 {
		lookbackDays = s.lookbackDays
	}
	cutoff := attribution.LookbackCutoff(conversionTime, lookbackDays)

	candidates, err := s.touchpoints.FindUserTouchpoints(ctx, userID, cutoff, conversionTime)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load journey for user %s: %w", userID, err)
	}

	journey := attribution.SelectJourney(candidates, userID, conversionTime, lookbackDays)
	s.logger.Attribution().Debug("Journey reconstructed",
		"userId", userID,
		"conversionTime", conversionTime,
		"lookbackDays", lookbackDays,
		"touchpoints", len(journey))
	return journey, nil
}
