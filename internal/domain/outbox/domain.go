package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const (
	KindIdentityRegistered Kind = 1
	KindRoleChanged        Kind = 2
	KindDeactivated        Kind = 3
	KindReactivated        Kind = 4
	KindForcedLogout       Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindIdentityRegistered:
		return "identity.registered"
	case KindRoleChanged:
		return "identity.role_changed"
	case KindDeactivated:
		return "identity.deactivated"
	case KindReactivated:
		return "identity.reactivated"
	case KindForcedLogout:
		return "session.forced_logout"
	default:
		return "unknown"
	}
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tracestate     string
	Traceparent    string
	Baggage        string
}

type Repository interface {
	// Enqueue joins the caller's transaction when one is active.
	Enqueue(ctx context.Context, m Message) error

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
