package attribution

import "time"

// Touchpoint is a single recorded exposure of a user to a piece of content.
// Records are immutable once stored.
type Touchpoint struct {
	SequenceID int64          `json:"sequenceId"`
	UserID     string         `json:"userId"`
	ContentID  string         `json:"contentId"`
	SessionID  string         `json:"sessionId"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Before reports whether t sorts ahead of o in journey order.
func (t *Touchpoint) Before(o *Touchpoint) bool {
	if !t.Timestamp.Equal(o.Timestamp) {
		return t.Timestamp.Before(o.Timestamp)
	}
	return t.SequenceID < o.SequenceID
}

// Clone returns a deep copy of the touchpoint.
func (t *Touchpoint) Clone() *Touchpoint {
	out := *t
	out.Metadata = CloneMetadata(t.Metadata)
	return &out
}

// Conversion is a revenue-bearing event with its attribution frozen at the
// time it was recorded.
type Conversion struct {
	ConversionID    string         `json:"conversionId"`
	UserID          string         `json:"userId"`
	ConversionType  string         `json:"conversionType"`
	Revenue         float64        `json:"revenue"`
	Timestamp       time.Time      `json:"timestamp"`
	TouchpointCount int            `json:"touchpointCount"`
	Attribution     Snapshot       `json:"attribution"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the conversion, snapshot included.
func (c *Conversion) Clone() *Conversion {
	out := *c
	out.Attribution = c.Attribution.Clone()
	out.Metadata = CloneMetadata(c.Metadata)
	return &out
}

// CloneMetadata deep-copies decoded JSON metadata. Nested maps and slices are
// copied; other values are shared.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMetadata(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// ContentRevenue is the running aggregate kept per content id. It is fed
// exclusively by linear credits.
type ContentRevenue struct {
	ContentID             string  `json:"contentId"`
	TotalRevenue          float64 `json:"totalRevenue"`
	Conversions           float64 `json:"conversions"`
	FirstTouchConversions int     `json:"firstTouchConversions"`
	LastTouchConversions  int     `json:"lastTouchConversions"`
	AssistedConversions   int     `json:"assistedConversions"`
}

// RevenueDelta is the increment one conversion applies to a content id's
// aggregate.
type RevenueDelta struct {
	ContentID   string
	Revenue     float64
	Conversions float64
	FirstTouch  int
	LastTouch   int
	Assisted    int
}

// Apply adds the delta to the aggregate.
func (r *ContentRevenue) Apply(d RevenueDelta) {
	r.TotalRevenue += d.Revenue
	r.Conversions += d.Conversions
	r.FirstTouchConversions += d.FirstTouch
	r.LastTouchConversions += d.LastTouch
	r.AssistedConversions += d.Assisted
}
