package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	"golang.org/x/sync/errgroup"
)

// Defaults applied when a query passes a non-positive bound.
const (
	DefaultTopContentLimit = 10
	DefaultPathLimit       = 10
	DefaultMinPathLength   = 1
)

// ContentAttribution reports a content id's credited revenue under one model.
// The touch counters come from the all-time linear aggregates and ignore any
// date filter applied to the revenue figures.
type ContentAttribution struct {
	ContentID               string            `json:"contentId"`
	Model                   attribution.Model `json:"model"`
	TotalRevenue            float64           `json:"totalRevenue"`
	Conversions             int               `json:"conversions"`
	AvgRevenuePerConversion float64           `json:"avgRevenuePerConversion"`
	FirstTouchConversions   int               `json:"firstTouchConversions"`
	LastTouchConversions    int               `json:"lastTouchConversions"`
	AssistedConversions     int               `json:"assistedConversions"`
}

// ContentROI compares a content id's credited revenue with its production cost.
type ContentROI struct {
	ContentID             string            `json:"contentId"`
	Model                 attribution.Model `json:"model"`
	Revenue               float64           `json:"revenue"`
	ProductionCost        float64           `json:"productionCost"`
	Profit                float64           `json:"profit"`
	ROIPercentage         float64           `json:"roiPercentage"`
	RevenuePerDollarSpent float64           `json:"revenuePerDollarSpent"`
}

// ConversionPath counts conversions whose journeys followed the same content sequence.
type ConversionPath struct {
	Path         string  `json:"path"`
	Count        int     `json:"count"`
	TotalRevenue float64 `json:"totalRevenue"`
	AvgRevenue   float64 `json:"avgRevenue"`
}

// CustomerLifetimeValue totals the revenue of one user's conversions.
type CustomerLifetimeValue struct {
	UserID          string     `json:"userId"`
	LifetimeValue   float64    `json:"lifetimeValue"`
	ConversionCount int        `json:"conversionCount"`
	AvgOrderValue   float64    `json:"avgOrderValue"`
	FirstPurchase   *time.Time `json:"firstPurchase"`
	LastPurchase    *time.Time `json:"lastPurchase"`
	CustomerAgeDays int        `json:"customerAgeDays"`
}

// TopContent is the highest earning content id under one model.
type TopContent struct {
	ContentID string  `json:"contentId"`
	Revenue   float64 `json:"revenue"`
}

// AttributionSummary holds store-wide totals and the top earner per model.
type AttributionSummary struct {
	TotalRevenue                float64                           `json:"totalRevenue"`
	TotalConversions            int                               `json:"totalConversions"`
	AvgRevenuePerConversion     float64                           `json:"avgRevenuePerConversion"`
	TotalTouchpoints            int                               `json:"totalTouchpoints"`
	UniqueUsers                 int                               `json:"uniqueUsers"`
	AvgTouchpointsPerConversion float64                           `json:"avgTouchpointsPerConversion"`
	TopContentByModel           map[attribution.Model]*TopContent `json:"topContentByModel"`
}

// Overview bundles the dashboard queries.
type Overview struct {
	Model      attribution.Model    `json:"model"`
	Summary    *AttributionSummary  `json:"summary"`
	TopContent []ContentAttribution `json:"topContent"`
	TopPaths   []ConversionPath     `json:"topPaths"`
}

// AttributionAnalyticsService answers read-side questions about attributed
// revenue. It never mutates the store.
type AttributionAnalyticsService struct {
	store       attribution.Store
	journeys    *JourneyService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAttributionAnalyticsService creates an analytics service reading from store.
func NewAttributionAnalyticsService(store attribution.Store, journeys *JourneyService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AttributionAnalyticsService {
	return &AttributionAnalyticsService{
		store:       store,
		journeys:    journeys,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

type creditTally struct {
	revenue     float64
	conversions int
}

// tallyCredits sums each content id's credit under model across conversions.
func tallyCredits(conversions []*attribution.Conversion, model attribution.Model) map[string]*creditTally {
	tallies := make(map[string]*creditTally)
	for _, c := range conversions {
		for contentID, credit := range c.Attribution.For(model) {
			t, ok := tallies[contentID]
			if !ok {
				t = &creditTally{}
				tallies[contentID] = t
			}
			t.revenue += credit
			t.conversions++
		}
	}
	return tallies
}

func buildContentAttribution(agg attribution.ContentRevenue, model attribution.Model, tally *creditTally) ContentAttribution {
	result := ContentAttribution{
		ContentID:             agg.ContentID,
		Model:                 model,
		FirstTouchConversions: agg.FirstTouchConversions,
		LastTouchConversions:  agg.LastTouchConversions,
		AssistedConversions:   agg.AssistedConversions,
	}
	if tally != nil {
		result.TotalRevenue = tally.revenue
		result.Conversions = tally.conversions
		if tally.conversions > 0 {
			result.AvgRevenuePerConversion = tally.revenue / float64(tally.conversions)
		}
	}
	return result
}

func validateModel(model attribution.Model) error {
	if !model.Valid() {
		return &attribution.InvalidModelError{Model: string(model)}
	}
	return nil
}

// GetContentAttribution sums contentID's credit under model across the
// conversions inside [start, end]. Nil bounds are open.
func (s *AttributionAnalyticsService) GetContentAttribution(ctx context.Context, contentID string, model attribution.Model, start, end *time.Time) (*ContentAttribution, error) {
	began := time.Now()
	marker := s.perfTracker.StartOperation("get_content_attribution")
	defer marker.Complete()

	if err := validateModel(model); err != nil {
		marker.SetError(err)
		return nil, err
	}

	conversions, err := s.store.FindConversions(ctx, attribution.ConversionFilter{Start: start, End: end})
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}
	agg, err := s.store.GetContentRevenue(ctx, contentID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load content revenue: %w", err)
	}

	result := buildContentAttribution(agg, model, tallyCredits(conversions, model)[contentID])

	s.logger.Analytics().Info("Content attribution computed",
		"contentId", contentID,
		"model", model,
		"revenue", result.TotalRevenue,
		"conversions", result.Conversions,
		"duration", time.Since(began))
	return &result, nil
}

// GetTopRevenueContent ranks every content id in the revenue aggregates by
// credited revenue under model, highest first. Ties sort by content id.
func (s *AttributionAnalyticsService) GetTopRevenueContent(ctx context.Context, limit int, model attribution.Model, start, end *time.Time) ([]ContentAttribution, error) {
	began := time.Now()
	marker := s.perfTracker.StartOperation("get_top_revenue_content")
	defer marker.Complete()

	if err := validateModel(model); err != nil {
		marker.SetError(err)
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTopContentLimit
	}

	conversions, err := s.store.FindConversions(ctx, attribution.ConversionFilter{Start: start, End: end})
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}
	aggregates, err := s.store.ListContentRevenue(ctx)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to list content revenue: %w", err)
	}

	tallies := tallyCredits(conversions, model)
	ranked := make([]ContentAttribution, 0, len(aggregates))
	for _, agg := range aggregates {
		ranked = append(ranked, buildContentAttribution(agg, model, tallies[agg.ContentID]))
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalRevenue != ranked[j].TotalRevenue {
			return ranked[i].TotalRevenue > ranked[j].TotalRevenue
		}
		return ranked[i].ContentID < ranked[j].ContentID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	s.logger.Analytics().Info("Top revenue content ranked",
		"model", model,
		"candidates", len(aggregates),
		"returned", len(ranked),
		"duration", time.Since(began))
	return ranked, nil
}

// CalculateROI compares contentID's all-time credited revenue with its
// production cost. A cost of zero or less yields zero ROI figures; a
// non-finite cost is rejected.
func (s *AttributionAnalyticsService) CalculateROI(ctx context.Context, contentID string, productionCost float64, model attribution.Model) (*ContentROI, error) {
	marker := s.perfTracker.StartOperation("calculate_roi")
	defer marker.Complete()

	if math.IsNaN(productionCost) || math.IsInf(productionCost, 0) {
		err := &attribution.InvalidInputError{Field: "productionCost", Reason: "must be a finite number"}
		marker.SetError(err)
		return nil, err
	}

	attributed, err := s.GetContentAttribution(ctx, contentID, model, nil, nil)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	roi := &ContentROI{
		ContentID:      contentID,
		Model:          model,
		Revenue:        attributed.TotalRevenue,
		ProductionCost: productionCost,
		Profit:         attributed.TotalRevenue - productionCost,
	}
	if productionCost > 0 {
		roi.ROIPercentage = roi.Profit / productionCost * 100
		roi.RevenuePerDollarSpent = attributed.TotalRevenue / productionCost
	}
	return roi, nil
}

// AnalyzeConversionPaths groups conversions by the content sequence of their
// journey, re-derived from the touchpoint log with the default lookback.
// Journeys shorter than minTouchpoints are skipped.
func (s *AttributionAnalyticsService) AnalyzeConversionPaths(ctx context.Context, minTouchpoints, limit int) ([]ConversionPath, error) {
	began := time.Now()
	marker := s.perfTracker.StartOperation("analyze_conversion_paths")
	defer marker.Complete()

	if minTouchpoints < DefaultMinPathLength {
		minTouchpoints = DefaultMinPathLength
	}
	if limit <= 0 {
		limit = DefaultPathLimit
	}

	conversions, err := s.store.FindConversions(ctx, attribution.ConversionFilter{})
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}

	buckets := make(map[string]*ConversionPath)
	for _, c := range conversions {
		journey, err := s.journeys.GetUserJourney(ctx, c.UserID, c.Timestamp, 0)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		if len(journey) < minTouchpoints {
			continue
		}
		key := attribution.FormatPath(journey)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &ConversionPath{Path: key}
			buckets[key] = bucket
		}
		bucket.Count++
		bucket.TotalRevenue += c.Revenue
	}

	paths := make([]ConversionPath, 0, len(buckets))
	for _, bucket := range buckets {
		bucket.AvgRevenue = bucket.TotalRevenue / float64(bucket.Count)
		paths = append(paths, *bucket)
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Count != paths[j].Count {
			return paths[i].Count > paths[j].Count
		}
		if paths[i].TotalRevenue != paths[j].TotalRevenue {
			return paths[i].TotalRevenue > paths[j].TotalRevenue
		}
		return paths[i].Path < paths[j].Path
	})
	if len(paths) > limit {
		paths = paths[:limit]
	}

	s.logger.Analytics().Info("Conversion paths analyzed",
		"conversions", len(conversions),
		"distinctPaths", len(buckets),
		"returned", len(paths),
		"duration", time.Since(began))
	return paths, nil
}

// GetCustomerLifetimeValue totals every conversion of userID, with no
// lookback bound.
func (s *AttributionAnalyticsService) GetCustomerLifetimeValue(ctx context.Context, userID string) (*CustomerLifetimeValue, error) {
	marker := s.perfTracker.StartOperation("get_customer_lifetime_value")
	defer marker.Complete()

	conversions, err := s.store.FindConversions(ctx, attribution.ConversionFilter{UserID: userID})
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load conversions for user %s: %w", userID, err)
	}

	clv := &CustomerLifetimeValue{UserID: userID}
	if len(conversions) == 0 {
		return clv, nil
	}

	for _, c := range conversions {
		clv.LifetimeValue += c.Revenue
	}
	first := conversions[0].Timestamp
	last := conversions[len(conversions)-1].Timestamp
	clv.ConversionCount = len(conversions)
	clv.AvgOrderValue = clv.LifetimeValue / float64(clv.ConversionCount)
	clv.FirstPurchase = &first
	clv.LastPurchase = &last
	clv.CustomerAgeDays = attribution.DaysBetween(first, last)
	return clv, nil
}

// GetAttributionSummary reports global totals and each model's top earner.
func (s *AttributionAnalyticsService) GetAttributionSummary(ctx context.Context) (*AttributionSummary, error) {
	began := time.Now()
	marker := s.perfTracker.StartOperation("get_attribution_summary")
	defer marker.Complete()

	conversions, err := s.store.FindConversions(ctx, attribution.ConversionFilter{})
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}
	touchpoints, err := s.store.CountTouchpoints(ctx)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to count touchpoints: %w", err)
	}
	touchpointUsers, err := s.store.ListTouchpointUsers(ctx)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to list touchpoint users: %w", err)
	}

	users := make(map[string]struct{}, len(touchpointUsers))
	for _, u := range touchpointUsers {
		users[u] = struct{}{}
	}

	summary := &AttributionSummary{
		TotalConversions:  len(conversions),
		TotalTouchpoints:  touchpoints,
		TopContentByModel: make(map[attribution.Model]*TopContent),
	}
	journeyTouchpoints := 0
	for _, c := range conversions {
		summary.TotalRevenue += c.Revenue
		journeyTouchpoints += c.TouchpointCount
		users[c.UserID] = struct{}{}
	}
	summary.UniqueUsers = len(users)
	if summary.TotalConversions > 0 {
		summary.AvgRevenuePerConversion = summary.TotalRevenue / float64(summary.TotalConversions)
		summary.AvgTouchpointsPerConversion = float64(journeyTouchpoints) / float64(summary.TotalConversions)
	}

	for _, model := range attribution.Models {
		if top := topEarner(tallyCredits(conversions, model)); top != nil {
			summary.TopContentByModel[model] = top
		}
	}

	s.logger.Analytics().Info("Attribution summary computed",
		"conversions", summary.TotalConversions,
		"touchpoints", summary.TotalTouchpoints,
		"uniqueUsers", summary.UniqueUsers,
		"duration", time.Since(began))
	return summary, nil
}

func topEarner(tallies map[string]*creditTally) *TopContent {
	var top *TopContent
	for contentID, t := range tallies {
		if top == nil || t.revenue > top.Revenue || (t.revenue == top.Revenue && contentID < top.ContentID) {
			top = &TopContent{ContentID: contentID, Revenue: t.revenue}
		}
	}
	return top
}

// ListUserConversions returns userID's conversions with their frozen
// attribution, oldest first.
func (s *AttributionAnalyticsService) ListUserConversions(ctx context.Context, userID string) ([]*attribution.Conversion, error) {
	conversions, err := s.store.FindConversions(ctx, attribution.ConversionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions for user %s: %w", userID, err)
	}
	return conversions, nil
}

// GetUserJourney exposes journey reconstruction on the query surface.
func (s *AttributionAnalyticsService) GetUserJourney(ctx context.Context, userID string, at time.Time, lookbackDays int) ([]*attribution.Touchpoint, error) {
	return s.journeys.GetUserJourney(ctx, userID, at, lookbackDays)
}

// GetOverview runs the summary, top content and top path queries
// concurrently.
func (s *AttributionAnalyticsService) GetOverview(ctx context.Context, model attribution.Model, limit int) (*Overview, error) {
	began := time.Now()
	marker := s.perfTracker.StartOperation("get_overview")
	defer marker.Complete()

	if err := validateModel(model); err != nil {
		marker.SetError(err)
		return nil, err
	}

	overview := &Overview{Model: model}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.GetAttributionSummary(gctx)
		overview.Summary = summary
		return err
	})
	g.Go(func() error {
		top, err := s.GetTopRevenueContent(gctx, limit, model, nil, nil)
		overview.TopContent = top
		return err
	})
	g.Go(func() error {
		paths, err := s.AnalyzeConversionPaths(gctx, DefaultMinPathLength, limit)
		overview.TopPaths = paths
		return err
	})
	if err := g.Wait(); err != nil {
		marker.SetError(err)
		s.logger.Analytics().Error("Failed to build overview", "error", err.Error(), "model", model)
		return nil, err
	}

	s.logger.Analytics().Info("Overview computed", "model", model, "duration", time.Since(began))
	return overview, nil
}
