package attribution

import (
	"math"
	"time"
)

// TimeDecayHalfLifeDays is the half-life H used by the time-decay model.
const TimeDecayHalfLifeDays = 7.0

const (
	positionEndpointShare = 0.4
	positionMiddleShare   = 0.2
)

// Compute distributes revenue across journey under every model. The journey
// must already be in (timestamp, sequence id) order. An empty journey yields
// an empty map for each model.
func Compute(journey []*Touchpoint, revenue float64) Snapshot {
	snapshot := make(Snapshot, len(Models))
	for _, m := range Models {
		snapshot[m] = computeModel(m, journey, revenue)
	}
	return snapshot
}

// ComputeModel distributes revenue across journey for a single model.
func ComputeModel(m Model, journey []*Touchpoint, revenue float64) (Credits, error) {
	if !m.Valid() {
		return nil, &InvalidModelError{Model: string(m)}
	}
	return computeModel(m, journey, revenue), nil
}

func computeModel(m Model, journey []*Touchpoint, revenue float64) Credits {
	credits := Credits{}
	if len(journey) == 0 {
		return credits
	}

	switch m {
	case ModelFirstTouch:
		credits[journey[0].ContentID] = revenue
	case ModelLastTouch:
		credits[journey[len(journey)-1].ContentID] = revenue
	case ModelLinear:
		linear(credits, journey, revenue)
	case ModelTimeDecay:
		timeDecay(credits, journey, revenue)
	case ModelPositionBased:
		positionBased(credits, journey, revenue)
	}
	return credits
}

func linear(credits Credits, journey []*Touchpoint, revenue float64) {
	share := revenue / float64(len(journey))
	for _, tp := range journey {
		credits[tp.ContentID] += share
	}
}

// timeDecay weights each touchpoint by 2^(-(ln2/H) * d), where d is the
// whole number of days between the touchpoint and the last touchpoint.
func timeDecay(credits Credits, journey []*Touchpoint, revenue float64) {
	last := journey[len(journey)-1].Timestamp
	rate := math.Ln2 / TimeDecayHalfLifeDays

	weights := make([]float64, len(journey))
	var total float64
	for i, tp := range journey {
		days := float64(DaysBetween(tp.Timestamp, last))
		weights[i] = math.Pow(2, -rate*days)
		total += weights[i]
	}

	for i, tp := range journey {
		credits[tp.ContentID] += revenue * weights[i] / total
	}
}

func positionBased(credits Credits, journey []*Touchpoint, revenue float64) {
	n := len(journey)
	switch n {
	case 1:
		credits[journey[0].ContentID] += revenue
	case 2:
		credits[journey[0].ContentID] += revenue / 2
		credits[journey[1].ContentID] += revenue / 2
	default:
		credits[journey[0].ContentID] += revenue * positionEndpointShare
		credits[journey[n-1].ContentID] += revenue * positionEndpointShare
		middle := revenue * positionMiddleShare / float64(n-2)
		for _, tp := range journey[1 : n-1] {
			credits[tp.ContentID] += middle
		}
	}
}

// LinearDeltas derives the accumulator increments for one conversion from its
// linear credits. A content id that is both first and last touch (a journey of
// one, or a repeat at both ends) counts towards both.
func LinearDeltas(journey []*Touchpoint, linearCredits Credits) []RevenueDelta {
	if len(journey) == 0 {
		return nil
	}
	first := journey[0].ContentID
	last := journey[len(journey)-1].ContentID
	perConversion := 1 / float64(len(journey))

	deltas := make([]RevenueDelta, 0, len(linearCredits))
	for _, tp := range journey {
		credit, ok := linearCredits[tp.ContentID]
		if !ok || containsDelta(deltas, tp.ContentID) {
			continue
		}
		d := RevenueDelta{
			ContentID:   tp.ContentID,
			Revenue:     credit,
			Conversions: perConversion,
		}
		if tp.ContentID == first {
			d.FirstTouch = 1
		}
		if tp.ContentID == last {
			d.LastTouch = 1
		}
		if d.FirstTouch == 0 && d.LastTouch == 0 {
			d.Assisted = 1
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func containsDelta(deltas []RevenueDelta, contentID string) bool {
	for _, d := range deltas {
		if d.ContentID == contentID {
			return true
		}
	}
	return false
}

// DaysBetween returns the whole number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
