// Package staff holds in-process tables for the staff stores, used by tests
// and by STORAGE=memory local runs.
package staff

import (
	"context"
	"sync"

	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/repo"
)

// Table is a mutex-guarded map of rows keyed by user id.
type Table[T any] struct {
	mu   sync.Mutex
	rows map[string]T
	key  func(*T) string
}

func newTable[T any](key func(*T) string) *Table[T] {
	return &Table[T]{rows: map[string]T{}, key: key}
}

func NewProfileTable() *Table[entity.Profile] {
	return newTable(func(p *entity.Profile) string { return p.UserID })
}

func NewPermissionTable() *Table[entity.PermissionSet] {
	return newTable(func(p *entity.PermissionSet) string { return p.UserID })
}

func NewTrainerTable() *Table[entity.Trainer] {
	return newTable(func(t *entity.Trainer) string { return t.UserID })
}

func (t *Table[T]) Upsert(_ context.Context, v *T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[t.key(v)] = *v
	return nil
}

func (t *Table[T]) Get(_ context.Context, userID string) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rows[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &v, nil
}

func (t *Table[T]) Delete(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, userID)
	return nil
}

func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}
