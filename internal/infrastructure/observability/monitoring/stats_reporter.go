// Package monitoring provides a background worker that periodically logs
// ingestion and query statistics.
package monitoring

import (
	"context"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
)

// TouchpointCounter is the part of the store the reporter reads.
type TouchpointCounter interface {
	CountTouchpoints(ctx context.Context) (int, error)
}

// StatsReporter logs a snapshot of the performance tracker on every tick.
type StatsReporter struct {
	store    TouchpointCounter
	tracker  *performance.Tracker
	logger   *logging.ChanneledLogger
	interval time.Duration
}

// NewStatsReporter creates a reporter. An interval of zero or less disables it.
func NewStatsReporter(store TouchpointCounter, tracker *performance.Tracker, logger *logging.ChanneledLogger, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		store:    store,
		tracker:  tracker,
		logger:   logger,
		interval: interval,
	}
}

// Start runs until ctx is cancelled.
func (r *StatsReporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Perf().Info("Stats reporter disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Perf().Info("Stats reporter started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Perf().Info("Stats reporter stopping")
			return
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report logs one snapshot.
func (r *StatsReporter) Report(ctx context.Context) {
	touchpoints, err := r.store.CountTouchpoints(ctx)
	if err != nil {
		r.logger.LogError(logging.ChannelPerf, "stats_report", err, nil)
		return
	}

	args := []any{"touchpointsStored", touchpoints}
	for _, name := range []string{
		performance.CounterTouchpointsTracked,
		performance.CounterConversionsTracked,
		performance.CounterEmptyJourneyConversions,
		performance.CounterRejectedConversions,
		performance.CounterStreamClients,
	} {
		args = append(args, name, r.tracker.Counter(name))
	}
	if stats, ok := r.tracker.Operation("track_conversion"); ok {
		args = append(args,
			"trackConversionAvg", stats.AverageDuration(),
			"trackConversionMax", stats.MaxDuration,
			"trackConversionSlow", stats.SlowCount)
	}

	r.logger.Perf().Info("Attribution stats", args...)
}
