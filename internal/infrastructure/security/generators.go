// Package security provides identifier generation and token utilities
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateConversionID returns a ULID for a conversion recorded at ts. IDs
// generated for the same millisecond still sort in generation order.
// Timestamps outside the ULID range (before 1970 or after year 10889) are
// clamped to its bounds.
func GenerateConversionID(ts time.Time) (string, error) {
	ms := ulid.MaxTime()
	if !ts.After(time.UnixMilli(0)) {
		ms = 0
	} else if ts.Before(ulid.Time(ulid.MaxTime())) {
		ms = ulid.Timestamp(ts)
	}

	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate conversion id: %w", err)
	}
	return id.String(), nil
}

// GenerateSecureKey creates a cryptographically secure random key and returns it as a hex string.
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length/2) // Each byte becomes two hex characters
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
