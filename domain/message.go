package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. It always references a user
// that existed at write time.
type Message struct {
	ID        uuid.UUID
	AuthorID  string
	Author    string // author login resolved at write time
	Body      string
	Lang      string // ISO 639-1 code detected at ingestion, empty when unknown
	CreatedAt time.Time
}
