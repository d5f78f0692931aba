package identity

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
)

// MemoryStore is an in-process Store used by tests and local runs without Postgres.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]entity.Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]entity.Identity{}}
}

func (m *MemoryStore) Create(_ context.Context, i *entity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == i.Email {
			return ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt = now, now
	m.byID[i.ID] = *i
	return nil
}

func (m *MemoryStore) find(match func(entity.Identity) bool) (*entity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.byID {
		if match(i) {
			cp := i
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*entity.Identity, error) {
	return m.find(func(i entity.Identity) bool { return i.Email == normalizeEmail(email) })
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*entity.Identity, error) {
	return m.find(func(i entity.Identity) bool { return i.ID == id })
}

func (m *MemoryStore) GetByInvitationToken(_ context.Context, token string) (*entity.Identity, error) {
	return m.find(func(i entity.Identity) bool { return i.InvitationToken != nil && *i.InvitationToken == token })
}

func (m *MemoryStore) CompleteInvitation(_ context.Context, id, hash, algo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok || i.Confirmed {
		return ErrNotFound
	}
	now := time.Now().UTC()
	i.PasswordHash, i.PasswordAlgo = &hash, &algo
	i.Confirmed, i.ConfirmedAt = true, &now
	i.InvitationToken, i.InvitationExpiresAt = nil, nil
	i.UpdatedAt = now
	m.byID[id] = i
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

// Len reports how many identities are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
