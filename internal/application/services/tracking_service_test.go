package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackTouchpointDefaultsTimestampAndKeepsDuplicates(t *testing.T) {
	h := newHarness()
	fixed := time.Date(2025, 2, 1, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	h.tracking.now = func() time.Time { return fixed }

	in := TouchpointInput{UserID: "u1", ContentID: "A", SessionID: "s1"}
	first, err := h.tracking.TrackTouchpoint(context.Background(), in)
	require.NoError(t, err)
	second, err := h.tracking.TrackTouchpoint(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, first.Timestamp.Equal(fixed))
	assert.Equal(t, time.UTC, first.Timestamp.Location())
	assert.NotEqual(t, first.SequenceID, second.SequenceID)
	assert.Equal(t, int64(2), h.perf.Counter(performance.CounterTouchpointsTracked))
}

func TestTrackConversionScenarioSnapshot(t *testing.T) {
	h := newHarness()
	c := h.scenario(t)

	assert.Equal(t, 3, c.TouchpointCount)
	assert.NotEmpty(t, c.ConversionID)
	assert.Equal(t, attribution.Credits{"A": 100}, c.Attribution.For(attribution.ModelFirstTouch))
	assert.Equal(t, attribution.Credits{"C": 100}, c.Attribution.For(attribution.ModelLastTouch))

	linear := c.Attribution.For(attribution.ModelLinear)
	for _, id := range []string{"A", "B", "C"} {
		assert.InDelta(t, 33.33, linear[id], 0.01)
	}

	position := c.Attribution.For(attribution.ModelPositionBased)
	assert.InDelta(t, 40.0, position["A"], 1e-9)
	assert.InDelta(t, 20.0, position["B"], 1e-9)
	assert.InDelta(t, 40.0, position["C"], 1e-9)

	decay := c.Attribution.For(attribution.ModelTimeDecay)
	assert.Less(t, decay["A"], decay["B"])
	assert.Less(t, decay["B"], decay["C"])

	require.Len(t, h.publisher.conversions, 1)
	assert.Equal(t, c.ConversionID, h.publisher.conversions[0].ConversionID)
}

func TestTrackConversionUpdatesAccumulatorFromLinearCredits(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.scenario(t)

	a, err := h.store.GetContentRevenue(ctx, "A")
	require.NoError(t, err)
	assert.InDelta(t, 100.0/3, a.TotalRevenue, 1e-9)
	assert.InDelta(t, 1.0/3, a.Conversions, 1e-9)
	assert.Equal(t, 1, a.FirstTouchConversions)
	assert.Equal(t, 0, a.LastTouchConversions)
	assert.Equal(t, 0, a.AssistedConversions)

	b, err := h.store.GetContentRevenue(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, b.AssistedConversions)

	c, err := h.store.GetContentRevenue(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, 1, c.LastTouchConversions)

	var fractional float64
	for _, agg := range []attribution.ContentRevenue{a, b, c} {
		fractional += agg.Conversions
	}
	assert.InDelta(t, 1.0, fractional, 1e-9)
}

func TestTrackConversionSingleTouchpointCountsFirstAndLast(t *testing.T) {
	h := newHarness()
	h.touch(t, "solo", "X", conversionTime.Add(-time.Hour))
	h.convert(t, "solo", 10, conversionTime)

	x, err := h.store.GetContentRevenue(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 1, x.FirstTouchConversions)
	assert.Equal(t, 1, x.LastTouchConversions)
	assert.Equal(t, 0, x.AssistedConversions)
	assert.InDelta(t, 1.0, x.Conversions, 1e-9)
}

func TestTrackConversionEmptyJourney(t *testing.T) {
	h := newHarness()
	h.touch(t, "late", "A", conversionTime.Add(time.Hour))
	h.touch(t, "late", "B", conversionTime.Add(-31*day))

	c := h.convert(t, "late", 99, conversionTime)

	assert.Equal(t, 0, c.TouchpointCount)
	for _, model := range attribution.Models {
		assert.Empty(t, c.Attribution.For(model), model)
	}
	assert.Equal(t, int64(1), h.perf.Counter(performance.CounterEmptyJourneyConversions))

	aggregates, err := h.store.ListContentRevenue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, aggregates)
}

func TestTrackConversionRejectsInvalidRevenue(t *testing.T) {
	h := newHarness()
	h.touch(t, "u1", "A", conversionTime.Add(-day))

	for _, revenue := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		_, err := h.tracking.TrackConversion(context.Background(), ConversionInput{
			UserID: "u1", ConversionType: "purchase", Revenue: revenue, Timestamp: conversionTime,
		})
		require.Error(t, err)
		assert.True(t, isInvalidInput(err), "revenue %v", revenue)
	}

	conversions, err := h.store.FindConversions(context.Background(), attribution.ConversionFilter{})
	require.NoError(t, err)
	assert.Empty(t, conversions)
	assert.Equal(t, int64(3), h.perf.Counter(performance.CounterRejectedConversions))
	assert.Empty(t, h.publisher.conversions)
}

func TestTrackConversionZeroRevenueIsAccepted(t *testing.T) {
	h := newHarness()
	h.touch(t, "u1", "A", conversionTime.Add(-day))

	c := h.convert(t, "u1", 0, conversionTime)
	assert.Equal(t, 1, c.TouchpointCount)
	assert.InDelta(t, 0.0, c.Attribution.For(attribution.ModelLinear)["A"], 1e-12)
}

func TestTrackConversionSnapshotIsFrozen(t *testing.T) {
	h := newHarness()
	h.touch(t, "u1", "A", conversionTime.Add(-day))
	first := h.convert(t, "u1", 50, conversionTime)

	h.touch(t, "u1", "B", conversionTime.Add(-time.Hour))

	stored, err := h.analytics.ListUserConversions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, first.ConversionID, stored[0].ConversionID)
	assert.Equal(t, attribution.Credits{"A": 50}, stored[0].Attribution.For(attribution.ModelLinear))
}

func TestTrackConversionConcurrentUsersConserveRevenue(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	const users = 20
	const perUser = 5
	for u := 0; u < users; u++ {
		h.touch(t, fmt.Sprintf("user-%d", u), "shared", conversionTime.Add(-2*day))
		h.touch(t, fmt.Sprintf("user-%d", u), fmt.Sprintf("own-%d", u), conversionTime.Add(-day))
	}

	var wg sync.WaitGroup
	errs := make(chan error, users*perUser)
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(userID string, i int) {
				defer wg.Done()
				_, err := h.tracking.TrackConversion(ctx, ConversionInput{
					UserID:         userID,
					ConversionType: "purchase",
					Revenue:        10,
					Timestamp:      conversionTime.Add(time.Duration(i) * time.Minute),
				})
				errs <- err
			}(fmt.Sprintf("user-%d", u), i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	shared, err := h.store.GetContentRevenue(ctx, "shared")
	require.NoError(t, err)
	assert.InDelta(t, float64(users*perUser)*5, shared.TotalRevenue, 1e-6)
	assert.Equal(t, users*perUser, shared.FirstTouchConversions)

	summary, err := h.analytics.GetAttributionSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, users*perUser, summary.TotalConversions)
	assert.InDelta(t, float64(users*perUser)*10, summary.TotalRevenue, 1e-6)
	assert.Len(t, h.publisher.conversions, users*perUser)
}

func TestTrackConversionBeforeUnixEpoch(t *testing.T) {
	h := newHarness()
	at := time.Date(1969, 12, 1, 0, 0, 0, 0, time.UTC)
	h.touch(t, "U", "A", at.Add(-day))

	var c *attribution.Conversion
	require.NotPanics(t, func() { c = h.convert(t, "U", 10, at) })
	require.NotNil(t, c)
	assert.NotEmpty(t, c.ConversionID)
	assert.Equal(t, 1, c.TouchpointCount)
	assert.InDelta(t, 10, c.Attribution.For(attribution.ModelLinear)["A"], 1e-9)
}
