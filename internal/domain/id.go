package domain

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a 24 hex character identifier. The first 12 bytes of a
// UUIDv7 carry the millisecond timestamp, so ids sort by creation time.
func NewID() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return hex.EncodeToString(u[:12])
}
