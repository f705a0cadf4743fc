// Package memory provides an in-process attribution store backed by
// append-only slices.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
)

// Store keeps every record in memory. Records are copied on the way in and
// on the way out, so stored records are never mutated and readers can hold
// on to the slice header copied under the read lock.
type Store struct {
	mu          sync.RWMutex
	touchpoints []*attribution.Touchpoint
	conversions []*attribution.Conversion
	revenue     map[string]*attribution.ContentRevenue
	nextSeq     int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		revenue: make(map[string]*attribution.ContentRevenue),
	}
}

// AppendTouchpoint stores a copy of tp under the next sequence id and returns
// another copy.
func (s *Store) AppendTouchpoint(_ context.Context, tp *attribution.Touchpoint) (*attribution.Touchpoint, error) {
	stored := tp.Clone()

	s.mu.Lock()
	s.nextSeq++
	stored.SequenceID = s.nextSeq
	s.touchpoints = append(s.touchpoints, stored)
	s.mu.Unlock()

	return stored.Clone(), nil
}

// FindUserTouchpoints returns copies of the user's touchpoints with
// timestamps in [from, to], in insertion order.
func (s *Store) FindUserTouchpoints(_ context.Context, userID string, from, to time.Time) ([]*attribution.Touchpoint, error) {
	result := []*attribution.Touchpoint{}
	for _, tp := range s.touchpointSnapshot() {
		if tp.UserID != userID || tp.Timestamp.Before(from) || tp.Timestamp.After(to) {
			continue
		}
		result = append(result, tp.Clone())
	}
	return result, nil
}

// CountTouchpoints returns the number of stored touchpoints.
func (s *Store) CountTouchpoints(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.touchpoints), nil
}

// ListTouchpointUsers returns every user with a touchpoint, sorted.
func (s *Store) ListTouchpointUsers(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var users []string
	for _, tp := range s.touchpointSnapshot() {
		if _, ok := seen[tp.UserID]; ok {
			continue
		}
		seen[tp.UserID] = struct{}{}
		users = append(users, tp.UserID)
	}
	sort.Strings(users)
	return users, nil
}

// AppendConversion appends a copy of c and applies deltas inside one
// critical section.
func (s *Store) AppendConversion(_ context.Context, c *attribution.Conversion, deltas []attribution.RevenueDelta) error {
	stored := c.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversions = append(s.conversions, stored)
	for _, d := range deltas {
		agg, ok := s.revenue[d.ContentID]
		if !ok {
			agg = &attribution.ContentRevenue{ContentID: d.ContentID}
			s.revenue[d.ContentID] = agg
		}
		agg.Apply(d)
	}
	return nil
}

// FindConversions returns copies of the matching conversions ordered by
// timestamp.
func (s *Store) FindConversions(_ context.Context, filter attribution.ConversionFilter) ([]*attribution.Conversion, error) {
	s.mu.RLock()
	snapshot := s.conversions
	s.mu.RUnlock()

	result := []*attribution.Conversion{}
	for _, c := range snapshot {
		if filter.Matches(c) {
			result = append(result, c.Clone())
		}
	}
	// Conversions of different users may arrive out of timestamp order.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// GetContentRevenue returns the aggregate for contentID, or a zero value.
func (s *Store) GetContentRevenue(_ context.Context, contentID string) (attribution.ContentRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if agg, ok := s.revenue[contentID]; ok {
		return *agg, nil
	}
	return attribution.ContentRevenue{ContentID: contentID}, nil
}

// ListContentRevenue returns every aggregate ordered by content id.
func (s *Store) ListContentRevenue(_ context.Context) ([]attribution.ContentRevenue, error) {
	s.mu.RLock()
	result := make([]attribution.ContentRevenue, 0, len(s.revenue))
	for _, agg := range s.revenue {
		result = append(result, *agg)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ContentID < result[j].ContentID })
	return result, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) touchpointSnapshot() []*attribution.Touchpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touchpoints
}

var _ attribution.Store = (*Store)(nil)
