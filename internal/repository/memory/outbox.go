package memory

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

type OutboxRepo struct {
	s   *Store
	now func() time.Time
}

func NewOutboxRepo(s *Store, now func() time.Time) *OutboxRepo {
	if now == nil {
		now = time.Now
	}
	return &OutboxRepo{s: s, now: now}
}

func (r *OutboxRepo) Enqueue(ctx context.Context, m outbox.Message) error {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	for _, existing := range r.s.outbox {
		if existing.IdempotencyKey == m.IdempotencyKey {
			return nil
		}
	}
	ts := r.now().UTC()
	m.Status = outbox.StatusCreated
	m.CreatedAt, m.UpdatedAt = ts, ts
	r.s.outbox = append(r.s.outbox, m)
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	now := r.now().UTC()
	var out []outbox.Message
	for i := range r.s.outbox {
		if len(out) == batch {
			break
		}
		m := &r.s.outbox[i]
		stale := m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL))
		if m.Status != outbox.StatusCreated && !stale {
			continue
		}
		m.Status = outbox.StatusInProgress
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	done := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		done[k] = struct{}{}
	}
	now := r.now().UTC()
	for i := range r.s.outbox {
		if _, ok := done[r.s.outbox[i].IdempotencyKey]; ok {
			r.s.outbox[i].Status = outbox.StatusSuccess
			r.s.outbox[i].UpdatedAt = now
		}
	}
	return nil
}

// Messages returns a copy of every stored message in enqueue order.
func (r *OutboxRepo) Messages() []outbox.Message {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]outbox.Message(nil), r.s.outbox...)
}
