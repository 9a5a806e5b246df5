package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionEvent is published whenever an identity's session state changes in a
// way other services must react to (caches, websocket sessions, audit).
type SessionEvent struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	IdentityID   uuid.UUID `json:"identity_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	TokenVersion int64     `json:"token_version"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	PublishSessionEvent(ctx context.Context, e SessionEvent) error
}
