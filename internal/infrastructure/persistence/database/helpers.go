package database

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSlowQueryThreshold applies when no threshold is configured.
const DefaultSlowQueryThreshold = 100 * time.Millisecond

// TimestampLayout is fixed width so that stored timestamps compare
// lexicographically in the same order as chronologically.
const TimestampLayout = "2006-01-02 15:04:05.000000000"

// FormatTimestamp converts t to its stored UTC representation.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp back into UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// EncodeJSON marshals v for a TEXT column; nil values are stored as "{}".
func EncodeJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

// DecodeJSON unmarshals a TEXT column into v; empty strings are ignored.
func DecodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}
