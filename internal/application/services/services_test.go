package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/caching"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/require"
)

var conversionTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type recordingPublisher struct {
	mu          sync.Mutex
	conversions []*attribution.Conversion
}

func (p *recordingPublisher) PublishConversion(c *attribution.Conversion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversions = append(p.conversions, c)
}

type harness struct {
	store     *memory.Store
	perf      *performance.Tracker
	publisher *recordingPublisher
	tracking  *TrackingService
	analytics *AttributionAnalyticsService
	journeys  *JourneyService
}

func newHarness() *harness {
	logger := logging.NewDiscardLogger()
	perf := performance.NewTracker(nil)
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	journeys := NewJourneyService(store, attribution.DefaultLookbackDays, logger, perf)
	return &harness{
		store:     store,
		perf:      perf,
		publisher: publisher,
		journeys:  journeys,
		tracking:  NewTrackingService(store, journeys, caching.NewUserLocks(), publisher, logger, perf),
		analytics: NewAttributionAnalyticsService(store, journeys, logger, perf),
	}
}

func (h *harness) touch(t *testing.T, userID, contentID string, at time.Time) {
	t.Helper()
	_, err := h.tracking.TrackTouchpoint(context.Background(), TouchpointInput{
		UserID: userID, ContentID: contentID, SessionID: "session-" + userID, Timestamp: at,
	})
	require.NoError(t, err)
}

func (h *harness) convert(t *testing.T, userID string, revenue float64, at time.Time) *attribution.Conversion {
	t.Helper()
	c, err := h.tracking.TrackConversion(context.Background(), ConversionInput{
		UserID: userID, ConversionType: "purchase", Revenue: revenue, Timestamp: at,
	})
	require.NoError(t, err)
	return c
}

// scenario: A at T-10d, B at T-3d, C at T-1d, conversion of 100 at T.
func (h *harness) scenario(t *testing.T) *attribution.Conversion {
	h.touch(t, "U", "A", conversionTime.Add(-10*day))
	h.touch(t, "U", "B", conversionTime.Add(-3*day))
	h.touch(t, "U", "C", conversionTime.Add(-1*day))
	return h.convert(t, "U", 100, conversionTime)
}

func isInvalidInput(err error) bool {
	var target *attribution.InvalidInputError
	return errors.As(err, &target)
}

func isInvalidModel(err error) bool {
	var target *attribution.InvalidModelError
	return errors.As(err, &target)
}
