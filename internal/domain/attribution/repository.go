package attribution

import (
	"context"
	"time"
)

// ConversionFilter narrows FindConversions. Nil or empty fields do not filter.
// Start and End are inclusive.
type ConversionFilter struct {
	UserID string
	Start  *time.Time
	End    *time.Time
}

// Matches reports whether c satisfies the filter.
func (f ConversionFilter) Matches(c *Conversion) bool {
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.Start != nil && c.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && c.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// TouchpointRepository is the append-only touchpoint log.
type TouchpointRepository interface {
	// AppendTouchpoint stores tp and returns it with its sequence id assigned.
	AppendTouchpoint(ctx context.Context, tp *Touchpoint) (*Touchpoint, error)

	// FindUserTouchpoints returns a user's touchpoints with from <= timestamp <= to.
	// Ordering is not guaranteed.
	FindUserTouchpoints(ctx context.Context, userID string, from, to time.Time) ([]*Touchpoint, error)

	// CountTouchpoints returns the number of stored touchpoints.
	CountTouchpoints(ctx context.Context) (int, error)

	// ListTouchpointUsers returns each distinct user id with at least one touchpoint.
	ListTouchpointUsers(ctx context.Context) ([]string, error)
}

// ConversionRepository is the append-only conversion log.
type ConversionRepository interface {
	// AppendConversion stores c and applies deltas to the revenue aggregates
	// as a single atomic write.
	AppendConversion(ctx context.Context, c *Conversion, deltas []RevenueDelta) error

	// FindConversions returns matching conversions ordered by timestamp.
	FindConversions(ctx context.Context, filter ConversionFilter) ([]*Conversion, error)
}

// RevenueRepository reads the per-content aggregates.
type RevenueRepository interface {
	// GetContentRevenue returns the aggregate for a content id, or a zero
	// aggregate if the id was never credited.
	GetContentRevenue(ctx context.Context, contentID string) (ContentRevenue, error)

	// ListContentRevenue returns every aggregate.
	ListContentRevenue(ctx context.Context) ([]ContentRevenue, error)
}

// Store bundles the repositories a backend must provide.
type Store interface {
	TouchpointRepository
	ConversionRepository
	RevenueRepository
	Close() error
}
