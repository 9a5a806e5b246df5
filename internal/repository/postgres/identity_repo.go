package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/NordCoder/storefront-auth/internal/domain/identity"
)

var _ identity.Repo = (*IdentityRepo)(nil)

type IdentityRepo struct{ db *DB }

func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

const (
	identityColumns = `id, email, password_hash, role, token_version, active, created_at, updated_at`

	qIdentityCreate = `
INSERT INTO identities (id, email, password_hash, role, token_version, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;`

	qIdentityByID    = `SELECT ` + identityColumns + ` FROM identities WHERE id = $1;`
	qIdentityByEmail = `SELECT ` + identityColumns + ` FROM identities WHERE email = $1;`

	qIdentityMutate = `
UPDATE identities
SET role          = COALESCE($2::text, role),
    active        = COALESCE($3::boolean, active),
    token_version = token_version + 1,
    updated_at    = now()
WHERE id = $1
RETURNING ` + identityColumns + `;`
)

type identityRow struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	TokenVersion int64     `db:"token_version"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r identityRow) toDomain() *identity.Identity {
	return &identity.Identity{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         identity.Role(r.Role),
		TokenVersion: r.TokenVersion,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r *IdentityRepo) Create(ctx context.Context, i *identity.Identity) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	err := r.db.execQueryer(ctx).
		QueryRow(ctx, qIdentityCreate, i.ID, i.Email, i.PasswordHash, string(i.Role), i.TokenVersion, i.Active).
		Scan(&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*identity.Identity, error) {
	return r.getOne(ctx, qIdentityByID, id)
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	return r.getOne(ctx, qIdentityByEmail, email)
}

func (r *IdentityRepo) Mutate(ctx context.Context, id uuid.UUID, m identity.Mutation) (*identity.Identity, error) {
	var role *string
	if m.Role != nil {
		s := string(*m.Role)
		role = &s
	}
	return r.getOne(ctx, qIdentityMutate, id, role, m.Active)
}

func (r *IdentityRepo) getOne(ctx context.Context, q string, args ...any) (*identity.Identity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var row identityRow
	if err := pgxscan.Get(ctx, r.db.execQueryer(ctx), &row, q, args...); err != nil {
		if mapped := mapErr(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("identity query: %w", err)
	}
	return row.toDomain(), nil
}
