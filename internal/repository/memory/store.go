// Package memory is a process-local backend for tests and single-node dev
// runs. All repos created from one Store share a lock and a transaction.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
)

type Store struct {
	// txMu serializes transactions; mu guards the maps for single statements.
	txMu sync.Mutex
	mu   sync.Mutex

	identities map[uuid.UUID]identity.Identity
	byEmail    map[string]uuid.UUID
	refresh    map[string]auth.RefreshToken
	outbox     []outbox.Message
}

func NewStore() *Store {
	return &Store{
		identities: make(map[uuid.UUID]identity.Identity),
		byEmail:    make(map[string]uuid.UUID),
		refresh:    make(map[string]auth.RefreshToken),
	}
}

type snapshot struct {
	identities map[uuid.UUID]identity.Identity
	byEmail    map[string]uuid.UUID
	refresh    map[string]auth.RefreshToken
	outbox     []outbox.Message
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		identities: make(map[uuid.UUID]identity.Identity, len(s.identities)),
		byEmail:    make(map[string]uuid.UUID, len(s.byEmail)),
		refresh:    make(map[string]auth.RefreshToken, len(s.refresh)),
		outbox:     append([]outbox.Message(nil), s.outbox...),
	}
	for k, v := range s.identities {
		snap.identities[k] = v
	}
	for k, v := range s.byEmail {
		snap.byEmail[k] = v
	}
	for k, v := range s.refresh {
		snap.refresh[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = snap.identities
	s.byEmail = snap.byEmail
	s.refresh = snap.refresh
	s.outbox = snap.outbox
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lockStmt takes the statement lock. Outside a transaction it also waits for
// any running transaction so single statements never observe partial state.
func (s *Store) lockStmt(ctx context.Context) func() {
	if inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

var _ auth.Transactor = (*Transactor)(nil)

type Transactor struct{ s *Store }

func NewTransactor(s *Store) *Transactor { return &Transactor{s: s} }

// WithTx runs fn with exclusive access to the store and restores the previous
// state when fn fails. Nested calls join the outer transaction.
func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	snap := t.s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			t.s.restore(snap)
			panic(p)
		}
		if err != nil {
			t.s.restore(snap)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, true))
}
