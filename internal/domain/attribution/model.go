// Package attribution defines the touchpoint and conversion entities, the
// closed set of attribution models and the storage contracts used by the
// revenue attribution engine.
package attribution

import "fmt"

// Model identifies an attribution algorithm.
type Model string

const (
	ModelFirstTouch    Model = "first_touch"
	ModelLastTouch     Model = "last_touch"
	ModelLinear        Model = "linear"
	ModelTimeDecay     Model = "time_decay"
	ModelPositionBased Model = "position_based"
)

// DefaultModel is used by query surfaces when the caller names none.
const DefaultModel = ModelLinear

// Models lists every supported model in a stable order.
var Models = []Model{
	ModelFirstTouch,
	ModelLastTouch,
	ModelLinear,
	ModelTimeDecay,
	ModelPositionBased,
}

// Valid reports whether m is one of the supported models.
func (m Model) Valid() bool {
	switch m {
	case ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased:
		return true
	}
	return false
}

func (m Model) String() string { return string(m) }

// ParseModel converts an identifier into a Model. Unknown identifiers yield an
// *InvalidModelError; there is no fallback.
func ParseModel(s string) (Model, error) {
	m := Model(s)
	if !m.Valid() {
		return "", &InvalidModelError{Model: s}
	}
	return m, nil
}

// Credits maps a content id to the revenue credited to it.
type Credits map[string]float64

// Total sums every credit in the map.
func (c Credits) Total() float64 {
	var total float64
	for _, credit := range c {
		total += credit
	}
	return total
}

// Snapshot holds one credit map per model for a single conversion.
type Snapshot map[Model]Credits

// For returns the credit map for a model, never nil.
func (s Snapshot) For(m Model) Credits {
	if credits, ok := s[m]; ok && credits != nil {
		return credits
	}
	return Credits{}
}

// Clone returns a copy of the snapshot that shares no maps with s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for model, credits := range s {
		if credits == nil {
			out[model] = nil
			continue
		}
		copied := make(Credits, len(credits))
		for id, credit := range credits {
			copied[id] = credit
		}
		out[model] = copied
	}
	return out
}

// InvalidModelError is returned when a model identifier is not recognised.
type InvalidModelError struct {
	Model string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid attribution model %q", e.Model)
}

// InvalidInputError is returned when an ingestion argument is out of range.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
