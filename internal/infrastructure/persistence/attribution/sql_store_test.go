package attribution

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	logger := logging.NewDiscardLogger()

	cfg, err := database.SQLiteConfig(filepath.Join(t.TempDir(), "attribution.db"))
	require.NoError(t, err)
	cfg.MaxOpenConns = 1

	db, err := database.NewConnectionWithLogger(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema())

	store := NewSQLStore(db, logger)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreAppendTouchpointAssignsSequence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.AppendTouchpoint(ctx, &attribution.Touchpoint{
		UserID: "u1", ContentID: "A", SessionID: "s1", Timestamp: base,
		Metadata: map[string]any{"channel": "email"},
	})
	require.NoError(t, err)
	second, err := store.AppendTouchpoint(ctx, &attribution.Touchpoint{
		UserID: "u1", ContentID: "B", SessionID: "s1", Timestamp: base,
	})
	require.NoError(t, err)

	assert.Greater(t, second.SequenceID, first.SequenceID)

	found, err := store.FindUserTouchpoints(ctx, "u1", base, base)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "A", found[0].ContentID)
	assert.Equal(t, "email", found[0].Metadata["channel"])
	assert.True(t, found[0].Timestamp.Equal(base))
}

func TestSQLStoreFindUserTouchpointsBoundsInclusive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, offset := range []time.Duration{-time.Nanosecond, 0, time.Hour, 2 * time.Hour, 2*time.Hour + time.Nanosecond} {
		_, err := store.AppendTouchpoint(ctx, &attribution.Touchpoint{
			UserID: "u1", ContentID: string(rune('A' + i)), SessionID: "s", Timestamp: base.Add(offset),
		})
		require.NoError(t, err)
	}
	_, err := store.AppendTouchpoint(ctx, &attribution.Touchpoint{
		UserID: "u2", ContentID: "Z", SessionID: "s", Timestamp: base,
	})
	require.NoError(t, err)

	found, err := store.FindUserTouchpoints(ctx, "u1", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "B", found[0].ContentID)
	assert.Equal(t, "D", found[2].ContentID)

	count, err := store.CountTouchpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	users, err := store.ListTouchpointUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)
}

func TestSQLStoreAppendConversionAppliesDeltas(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conversion := &attribution.Conversion{
		ConversionID:    "c1",
		UserID:          "u1",
		ConversionType:  "purchase",
		Revenue:         300,
		Timestamp:       base,
		TouchpointCount: 3,
		Attribution: attribution.Snapshot{
			attribution.ModelLinear:     {"A": 100, "B": 100, "C": 100},
			attribution.ModelFirstTouch: {"A": 300},
		},
	}
	deltas := []attribution.RevenueDelta{
		{ContentID: "A", Revenue: 100, Conversions: 1.0 / 3, FirstTouch: 1},
		{ContentID: "B", Revenue: 100, Conversions: 1.0 / 3, Assisted: 1},
		{ContentID: "C", Revenue: 100, Conversions: 1.0 / 3, LastTouch: 1},
	}
	require.NoError(t, store.AppendConversion(ctx, conversion, deltas))

	second := *conversion
	second.ConversionID = "c2"
	second.Timestamp = base.Add(time.Hour)
	require.NoError(t, store.AppendConversion(ctx, &second, deltas[:1]))

	a, err := store.GetContentRevenue(ctx, "A")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, a.TotalRevenue, 1e-9)
	assert.InDelta(t, 2.0/3, a.Conversions, 1e-9)
	assert.Equal(t, 2, a.FirstTouchConversions)

	b, err := store.GetContentRevenue(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, b.AssistedConversions)

	all, err := store.ListContentRevenue(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].ContentID)

	conversions, err := store.FindConversions(ctx, attribution.ConversionFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, conversions, 2)
	assert.Equal(t, "c1", conversions[0].ConversionID)
	assert.Equal(t, 3, conversions[0].TouchpointCount)
	assert.InDelta(t, 100.0, conversions[0].Attribution.For(attribution.ModelLinear)["B"], 1e-9)
	assert.Empty(t, conversions[0].Attribution.For(attribution.ModelTimeDecay))
}

func TestSQLStoreAppendConversionIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conversion := &attribution.Conversion{ConversionID: "dup", UserID: "u1", ConversionType: "purchase", Revenue: 10, Timestamp: base}
	delta := []attribution.RevenueDelta{{ContentID: "A", Revenue: 10, Conversions: 1, FirstTouch: 1, LastTouch: 1}}
	require.NoError(t, store.AppendConversion(ctx, conversion, delta))

	// A duplicate primary key must roll back the revenue upsert too.
	require.Error(t, store.AppendConversion(ctx, conversion, delta))

	a, err := store.GetContentRevenue(ctx, "A")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, a.TotalRevenue, 1e-9)
	assert.Equal(t, 1, a.LastTouchConversions)
}

func TestSQLStoreFindConversionsDateFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, store.AppendConversion(ctx, &attribution.Conversion{
			ConversionID: id, UserID: "u1", ConversionType: "purchase",
			Revenue: 1, Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		}, nil))
	}

	start := base.Add(24 * time.Hour)
	end := base.Add(48 * time.Hour)
	found, err := store.FindConversions(ctx, attribution.ConversionFilter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "c2", found[0].ConversionID)
	assert.Equal(t, "c3", found[1].ConversionID)

	none, err := store.FindConversions(ctx, attribution.ConversionFilter{UserID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLStoreGetContentRevenueMissingIsZero(t *testing.T) {
	store := newTestStore(t)

	agg, err := store.GetContentRevenue(context.Background(), "never-credited")
	require.NoError(t, err)
	assert.Equal(t, attribution.ContentRevenue{ContentID: "never-credited"}, agg)
}

func TestSQLStoreConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.AppendConversion(ctx, &attribution.Conversion{
				ConversionID: string(rune('a'+i)) + "-conv", UserID: "u", ConversionType: "purchase",
				Revenue: 5, Timestamp: base,
			}, []attribution.RevenueDelta{{ContentID: "A", Revenue: 5, Conversions: 1, FirstTouch: 1, LastTouch: 1}})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	a, err := store.GetContentRevenue(ctx, "A")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, a.TotalRevenue, 1e-9)
	assert.Equal(t, writers, a.FirstTouchConversions)
}
