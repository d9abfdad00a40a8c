package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7 for requests, notifications and profiles.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewMessageID returns a ULID for a request thread message.
func NewMessageID() string {
	return ulid.Make().String()
}
