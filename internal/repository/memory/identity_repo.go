package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/storefront-auth/internal/domain"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
)

var _ identity.Repo = (*IdentityRepo)(nil)

type IdentityRepo struct {
	s   *Store
	now func() time.Time
}

func NewIdentityRepo(s *Store, now func() time.Time) *IdentityRepo {
	if now == nil {
		now = time.Now
	}
	return &IdentityRepo{s: s, now: now}
}

func (r *IdentityRepo) Create(ctx context.Context, i *identity.Identity) error {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	if _, taken := r.s.byEmail[i.Email]; taken {
		return domain.ErrDuplicate
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	ts := r.now().UTC()
	i.CreatedAt, i.UpdatedAt = ts, ts
	r.s.identities[i.ID] = *i
	r.s.byEmail[i.Email] = i.ID
	return nil
}

func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*identity.Identity, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	i, ok := r.s.identities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &i, nil
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	id, ok := r.s.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	i := r.s.identities[id]
	return &i, nil
}

func (r *IdentityRepo) Mutate(ctx context.Context, id uuid.UUID, m identity.Mutation) (*identity.Identity, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	i, ok := r.s.identities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if m.Role != nil {
		i.Role = *m.Role
	}
	if m.Active != nil {
		i.Active = *m.Active
	}
	i.TokenVersion++
	i.UpdatedAt = r.now().UTC()
	r.s.identities[id] = i
	return &i, nil
}
