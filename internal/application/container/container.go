// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/AtRiskMedia/tractstack-attribution/internal/application/services"
	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/caching"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Attribution Services (stateless singletons)
	JourneyService   *services.JourneyService
	TrackingService  *services.TrackingService
	AnalyticsService *services.AttributionAnalyticsService

	// Infrastructure Dependencies
	Store       attribution.Store
	UserLocks   *caching.UserLocks
	Broadcaster *messaging.ConversionBroadcaster
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker

	// Settings
	ReportingJWTSecret string
}

// Options carries the settings the container needs beyond its dependencies.
type Options struct {
	LookbackDays       int
	ReportingJWTSecret string
}

// NewContainer creates and wires all singleton services
func NewContainer(store attribution.Store, logger *logging.ChanneledLogger, perfTracker *performance.Tracker, opts Options) *Container {
	locks := caching.NewUserLocks()
	broadcaster := messaging.NewConversionBroadcaster(logger, perfTracker)
	journeys := services.NewJourneyService(store, opts.LookbackDays, logger, perfTracker)

	return &Container{
		JourneyService:   journeys,
		TrackingService:  services.NewTrackingService(store, journeys, locks, broadcaster, logger, perfTracker),
		AnalyticsService: services.NewAttributionAnalyticsService(store, journeys, logger, perfTracker),

		Store:       store,
		UserLocks:   locks,
		Broadcaster: broadcaster,
		Logger:      logger,
		PerfTracker: perfTracker,

		ReportingJWTSecret: opts.ReportingJWTSecret,
	}
}
