package attribution

import (
	"sort"
	"strings"
	"time"
)

// DefaultLookbackDays bounds how far back a journey reaches.
const DefaultLookbackDays = 30

// LookbackCutoff returns the earliest timestamp that still belongs to a
// journey ending at conversionTime.
func LookbackCutoff(conversionTime time.Time, lookbackDays int) time.Time {
	return conversionTime.Add(-time.Duration(lookbackDays) * 24 * time.Hour)
}

// SelectJourney filters candidates down to userID's touchpoints inside
// [cutoff, conversionTime] and sorts them by (timestamp, sequence id).
func SelectJourney(candidates []*Touchpoint, userID string, conversionTime time.Time, lookbackDays int) []*Touchpoint {
	cutoff := LookbackCutoff(conversionTime, lookbackDays)

	journey := make([]*Touchpoint, 0, len(candidates))
	for _, tp := range candidates {
		if tp.UserID != userID {
			continue
		}
		if tp.Timestamp.Before(cutoff) || tp.Timestamp.After(conversionTime) {
			continue
		}
		journey = append(journey, tp)
	}

	sort.Slice(journey, func(i, j int) bool {
		return journey[i].Before(journey[j])
	})
	return journey
}

// FormatPath renders a journey as "a -> b -> c".
func FormatPath(journey []*Touchpoint) string {
	ids := make([]string, len(journey))
	for i, tp := range journey {
		ids[i] = tp.ContentID
	}
	return strings.Join(ids, " -> ")
}
