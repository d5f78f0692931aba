package auth

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-gym/internal/auth/repo"
)

// SessionStore persists refresh sessions; *repo.SessionRepo satisfies it.
type SessionStore interface {
	Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (int64, error)
	// Take removes a session and returns it atomically.
	Take(ctx context.Context, tokenHash string) (*repo.Session, error)
	Delete(ctx context.Context, tokenHash string) error
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// MemorySessions keeps refresh sessions in process for STORAGE=memory runs and tests.
type MemorySessions struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]repo.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{rows: map[string]repo.Session{}}
}

func (m *MemorySessions) Save(_ context.Context, tokenHash, userID string, expiresAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows[tokenHash] = repo.Session{ID: m.nextID, TokenHash: tokenHash, UserID: userID, ExpiresAt: expiresAt}
	return m.nextID, nil
}

func (m *MemorySessions) Take(_ context.Context, tokenHash string) (*repo.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[tokenHash]
	if !ok {
		return nil, repo.ErrNotFound
	}
	delete(m.rows, tokenHash)
	return &s, nil
}

func (m *MemorySessions) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, tokenHash)
	return nil
}
