package domain

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// NewTurnID returns a lexicographically sortable turn identifier, so routing
// history reads in causal order even across process restarts.
func NewTurnID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
