package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-gym/internal/identity"
	identityentity "github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-gym/internal/notify"
	"github.com/ovaphlow/pitchfork/service-gym/internal/ratelimit"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func newTokens(t *testing.T) *TokenService {
	t.Helper()
	return NewTokenService(signingKey(t), TokenConfig{Issuer: "gym-test"}, NewMemorySessions())
}

type mockRoles struct {
	roleFunc func(ctx context.Context, userID string) (string, error)
}

func (m mockRoles) Role(ctx context.Context, userID string) (string, error) {
	return m.roleFunc(ctx, userID)
}

func fixedRole(role string) mockRoles {
	return mockRoles{roleFunc: func(context.Context, string) (string, error) { return role, nil }}
}

func TestTokenService_IssueAndParse(t *testing.T) {
	s := newTokens(t)

	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "admin")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := s.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "gym-test", claims.Issuer)
}

func TestTokenService_ParseRejects(t *testing.T) {
	s := newTokens(t)
	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(time.Hour) }
		defer func() { s.now = time.Now }()
		_, err := s.Parse(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenService(signingKey(t), TokenConfig{Issuer: "someone-else"}, NewMemorySessions())
		p, err := other.Issue(t.Context(), "u1", "a@b.com", "")
		require.NoError(t, err)
		_, err = s.Parse(p.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("hmac signed", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1", Issuer: "gym-test"})
		raw, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = s.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenService_ConsumeRotates(t *testing.T) {
	s := newTokens(t)
	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "")
	require.NoError(t, err)

	userID, err := s.Consume(t.Context(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = s.Consume(t.Context(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_ConsumeConcurrent(t *testing.T) {
	s := newTokens(t)
	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Consume(context.Background(), pair.RefreshToken)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidToken):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(15), rejected.Load())
}

func TestTokenService_ConsumeExpired(t *testing.T) {
	s := newTokens(t)
	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = s.Consume(t.Context(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestTokenService_Revoke(t *testing.T) {
	s := newTokens(t)
	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "")
	require.NoError(t, err)

	require.NoError(t, s.Revoke(t.Context(), pair.RefreshToken))
	_, err = s.Consume(t.Context(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_JWKS(t *testing.T) {
	s := newTokens(t)
	jwks := s.JWKS()
	keys, ok := jwks["keys"].([]any)
	require.True(t, ok)
	require.Len(t, keys, 1)
	k := keys[0].(map[string]any)
	assert.Equal(t, "RSA", k["kty"])
	assert.Equal(t, "RS256", k["alg"])
	assert.Equal(t, s.kid, k["kid"])
	assert.Equal(t, "AQAB", k["e"])
}

func TestLoadSigningKey_Errors(t *testing.T) {
	_, err := LoadSigningKey("/nonexistent/key.pem")
	assert.Error(t, err)
}

func serve(mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})).ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateMiddleware(t *testing.T) {
	s := newTokens(t)
	logger := zap.NewNop().Sugar()
	pair, err := s.Issue(t.Context(), "u1", "a@b.com", "")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"invalid", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK, "u1"},
		{"lowercase scheme", "bearer " + pair.AccessToken, http.StatusOK, "u1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := serve(Authenticate(s, logger), req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	logger := zap.NewNop().Sugar()
	withUser := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), userIDKey, id))
	}

	t.Run("admin admitted", func(t *testing.T) {
		rec := serve(RequireRole(fixedRole("admin"), "admin", logger), withUser("u1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("trainer forbidden", func(t *testing.T) {
		rec := serve(RequireRole(fixedRole("trainer"), "admin", logger), withUser("u1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("lookup error forbidden", func(t *testing.T) {
		roles := mockRoles{roleFunc: func(context.Context, string) (string, error) { return "", errors.New("boom") }}
		rec := serve(RequireRole(roles, "admin", logger), withUser("u1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("no user", func(t *testing.T) {
		rec := serve(RequireRole(fixedRole("admin"), "admin", logger), httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type handlerFixture struct {
	h       *Handler
	tokens  *TokenService
	users   *identity.Service
	limiter *ratelimit.Memory
	user    *identityentity.Identity
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	users := identity.NewService(identity.NewMemoryStore(), identity.BcryptHasher{Cost: bcrypt.MinCost},
		notify.LogPublisher{Logger: zap.NewNop().Sugar()}, identity.Config{})
	u, err := users.CreateConfirmed(t.Context(), "coach@gym.test", "correct-horse", identityentity.Metadata{Role: "trainer"})
	require.NoError(t, err)
	tokens := newTokens(t)
	limiter := ratelimit.NewMemory(ratelimit.DefaultConfig())
	h := NewHandler(tokens, users, fixedRole("trainer"), limiter, zap.NewNop().Sugar())
	return &handlerFixture{h: h, tokens: tokens, users: users, limiter: limiter, user: u}
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestHandler_Login(t *testing.T) {
	f := newHandlerFixture(t)

	rec := post(f.h.Login, `{"email":"Coach@Gym.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	claims, err := f.tokens.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	assert.Equal(t, "trainer", claims.Role)
}

func TestHandler_LoginBadRequest(t *testing.T) {
	f := newHandlerFixture(t)
	rec := post(f.h.Login, `{"email":"coach@gym.test"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_LoginRateLimited(t *testing.T) {
	f := newHandlerFixture(t)

	for i := 0; i < 5; i++ {
		rec := post(f.h.Login, `{"email":"coach@gym.test","password":"wrong-password"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := post(f.h.Login, `{"email":"coach@gym.test","password":"correct-horse"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
}

type blockedLimiter struct {
	retryAfter time.Duration
}

func (b blockedLimiter) Check(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{RetryAfter: b.retryAfter}, nil
}

func (blockedLimiter) Clear(context.Context, string) error { return nil }

func TestHandler_LoginRetryAfterRoundsUp(t *testing.T) {
	f := newHandlerFixture(t)
	cases := []struct {
		retryAfter time.Duration
		want       string
	}{
		{900 * time.Millisecond, "1"},
		{time.Second, "1"},
		{59*time.Minute + 30*time.Second + time.Millisecond, "3571"},
	}
	for _, tc := range cases {
		t.Run(tc.retryAfter.String(), func(t *testing.T) {
			h := NewHandler(f.tokens, f.users, fixedRole("trainer"), blockedLimiter{tc.retryAfter}, zap.NewNop().Sugar())
			rec := post(h.Login, `{"email":"coach@gym.test","password":"correct-horse"}`)
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, tc.want, rec.Header().Get("Retry-After"))
		})
	}
}

func TestHandler_OversizedBody(t *testing.T) {
	f := newHandlerFixture(t)
	big := strings.Repeat("a", maxBodyBytes+1)

	cases := map[string]http.HandlerFunc{
		"login":   f.h.Login,
		"refresh": f.h.Refresh,
		"logout":  f.h.Logout,
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			body := `{"email":"coach@gym.test","password":"correct-horse","refresh_token":"` + big + `"}`
			rec := post(h, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_LoginClearsLimiter(t *testing.T) {
	f := newHandlerFixture(t)

	for i := 0; i < 4; i++ {
		post(f.h.Login, `{"email":"coach@gym.test","password":"wrong-password"}`)
	}
	rec := post(f.h.Login, `{"email":"coach@gym.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	res, err := f.limiter.Check(t.Context(), "coach@gym.test")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Remaining)
}

func TestHandler_RefreshAndLogout(t *testing.T) {
	f := newHandlerFixture(t)
	pair, err := f.tokens.Issue(t.Context(), f.user.ID, f.user.Email, "trainer")
	require.NoError(t, err)

	rec := post(f.h.Refresh, `{"refresh_token":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var next TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// the consumed token cannot be replayed
	rec = post(f.h.Refresh, `{"refresh_token":"`+pair.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(f.h.Logout, `{"refresh_token":"`+next.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = post(f.h.Refresh, `{"refresh_token":"`+next.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_JWKS(t *testing.T) {
	f := newHandlerFixture(t)
	rec := httptest.NewRecorder()
	f.h.JWKS(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys"`)
}
