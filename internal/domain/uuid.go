package domain

import "github.com/google/uuid"

// GenerateEventID generates a UUID v7 event ID. UUID v7 is time-ordered, so
// event logs sort chronologically by ID.
func GenerateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}
