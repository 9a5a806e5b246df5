package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	// Create fills ID and timestamps. Returns domain.ErrDuplicate on an email clash.
	Create(ctx context.Context, i *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	// Mutate applies m and increments the token version in one statement.
	// Returns domain.ErrNotFound when no row was affected.
	Mutate(ctx context.Context, id uuid.UUID, m Mutation) (*Identity, error)
}
