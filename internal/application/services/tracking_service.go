// Package services provides application-level services that orchestrate
// the attribution engine and coordinate between repositories and domain
// entities.
package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/caching"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/security"
)

// IngestionStore is the write side of the attribution store.
type IngestionStore interface {
	attribution.TouchpointRepository
	attribution.ConversionRepository
}

// ConversionPublisher is notified of every conversion after it is stored.
type ConversionPublisher interface {
	PublishConversion(c *attribution.Conversion)
}

// TouchpointInput describes a content exposure to record. A zero Timestamp
// means now.
type TouchpointInput struct {
	UserID    string         `json:"userId"`
	ContentID string         `json:"contentId"`
	SessionID string         `json:"sessionId"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConversionInput describes a revenue event to record. A zero Timestamp
// means now.
type ConversionInput struct {
	UserID         string         `json:"userId"`
	ConversionType string         `json:"conversionType"`
	Revenue        float64        `json:"revenue"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// TrackingService records touchpoints and conversions.
type TrackingService struct {
	store       IngestionStore
	journeys    *JourneyService
	locks       *caching.UserLocks
	publisher   ConversionPublisher
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	now         func() time.Time
}

// NewTrackingService creates a tracking service. publisher may be nil.
func NewTrackingService(
	store IngestionStore,
	journeys *JourneyService,
	locks *caching.UserLocks,
	publisher ConversionPublisher,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *TrackingService {
	return &TrackingService{
		store:       store,
		journeys:    journeys,
		locks:       locks,
		publisher:   publisher,
		logger:      logger,
		perfTracker: perfTracker,
		now:         time.Now,
	}
}

// TrackTouchpoint appends a touchpoint to the log. There is no
// deduplication; identical inputs produce distinct records.
func (s *TrackingService) TrackTouchpoint(ctx context.Context, in TouchpointInput) (*attribution.Touchpoint, error) {
	start := time.Now()
	marker := s.perfTracker.StartOperation("track_touchpoint")
	defer marker.Complete()

	timestamp := in.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	stored, err := s.store.AppendTouchpoint(ctx, &attribution.Touchpoint{
		UserID:    in.UserID,
		ContentID: in.ContentID,
		SessionID: in.SessionID,
		Timestamp: timestamp.UTC(),
		Metadata:  in.Metadata,
	})
	if err != nil {
		marker.SetError(err)
		s.logger.Ingest().Error("Failed to track touchpoint", "error", err.Error(), "userId", in.UserID, "contentId", in.ContentID)
		return nil, fmt.Errorf("failed to track touchpoint: %w", err)
	}

	s.perfTracker.Increment(performance.CounterTouchpointsTracked, 1)
	s.logger.Ingest().Debug("Touchpoint tracked",
		"sequenceId", stored.SequenceID,
		"userId", stored.UserID,
		"contentId", stored.ContentID,
		"duration", time.Since(start))
	return stored, nil
}

// TrackConversion records a conversion with its attribution snapshot and
// feeds the linear credits into the content revenue aggregates. Conversions
// of the same user are serialized.
func (s *TrackingService) TrackConversion(ctx context.Context, in ConversionInput) (*attribution.Conversion, error) {
	start := time.Now()
	marker := s.perfTracker.StartOperation("track_conversion")
	defer marker.Complete()

	if err := validateRevenue(in.Revenue); err != nil {
		marker.SetError(err)
		s.perfTracker.Increment(performance.CounterRejectedConversions, 1)
		s.logger.Ingest().Warn("Conversion rejected", "userId", in.UserID, "revenue", in.Revenue, "reason", err.Error())
		return nil, err
	}

	timestamp := in.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}
	timestamp = timestamp.UTC()

	s.locks.Lock(in.UserID)
	defer s.locks.Unlock(in.UserID)

	journey, err := s.journeys.GetUserJourney(ctx, in.UserID, timestamp, 0)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if len(journey) == 0 {
		s.perfTracker.Increment(performance.CounterEmptyJourneyConversions, 1)
		s.logger.Attribution().Warn("Conversion has no touchpoints in lookback window; revenue is unattributed",
			"userId", in.UserID,
			"revenue", in.Revenue,
			"lookbackDays", s.journeys.LookbackDays())
	}

	conversionID, err := security.GenerateConversionID(timestamp)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	snapshot := attribution.Compute(journey, in.Revenue)
	conversion := &attribution.Conversion{
		ConversionID:    conversionID,
		UserID:          in.UserID,
		ConversionType:  in.ConversionType,
		Revenue:         in.Revenue,
		Timestamp:       timestamp,
		TouchpointCount: len(journey),
		Attribution:     snapshot,
		Metadata:        in.Metadata,
	}
	deltas := attribution.LinearDeltas(journey, snapshot.For(attribution.ModelLinear))

	if err := s.store.AppendConversion(ctx, conversion, deltas); err != nil {
		marker.SetError(err)
		s.logger.Ingest().Error("Failed to track conversion", "error", err.Error(), "userId", in.UserID)
		return nil, fmt.Errorf("failed to track conversion: %w", err)
	}

	s.perfTracker.Increment(performance.CounterConversionsTracked, 1)
	if s.publisher != nil {
		s.publisher.PublishConversion(conversion.Clone())
	}

	s.logger.Ingest().Info("Conversion tracked",
		"conversionId", conversion.ConversionID,
		"userId", conversion.UserID,
		"revenue", conversion.Revenue,
		"touchpoints", conversion.TouchpointCount,
		"duration", time.Since(start))
	return conversion, nil
}

func validateRevenue(revenue float64) error {
	switch {
	case math.IsNaN(revenue) || math.IsInf(revenue, 0):
		return &attribution.InvalidInputError{Field: "revenue", Reason: "must be a finite number"}
	case revenue < 0:
		return &attribution.InvalidInputError{Field: "revenue", Reason: fmt.Sprintf("must not be negative, got %v", revenue)}
	}
	return nil
}
