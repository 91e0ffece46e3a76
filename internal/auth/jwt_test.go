package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager(clock clockwork.Clock) *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour, time.Hour, clock)
}

func TestGenerateAndValidatePlayerToken(t *testing.T) {
	mgr := newTestJWTManager(clockwork.NewRealClock())
	playerID := uuid.New()

	token, err := mgr.GenerateToken(RealmPlayer, playerID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmPlayer)
	require.NoError(t, err)
	assert.Equal(t, playerID.String(), claims.Subject)
	assert.Equal(t, RealmPlayer, claims.Realm)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager(clockwork.NewRealClock())

	token, err := mgr.GenerateToken(RealmPlayer, uuid.New())
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmResolver)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm resolver")
}

func TestUnknownRealm(t *testing.T) {
	mgr := newTestJWTManager(clockwork.NewRealClock())
	_, err := mgr.GenerateToken(Realm("admin"), uuid.New())
	assert.Error(t, err)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", time.Hour, time.Hour, clockwork.NewRealClock())
	mgr2 := NewJWTManager("secret-2", time.Hour, time.Hour, clockwork.NewRealClock())

	token, err := mgr1.GenerateToken(RealmPlayer, uuid.New())
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	mgr := newTestJWTManager(clock)

	token, err := mgr.GenerateToken(RealmResolver, uuid.New())
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestForeignIssuerRejected(t *testing.T) {
	mgr := newTestJWTManager(clockwork.NewRealClock())
	now := time.Now()
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   uuid.NewString(),
			Audience:  jwt.ClaimStrings{string(RealmResolver)},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Realm: RealmResolver,
	})
	token, err := forged.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmResolver)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRealmClaimMustMatchAudience(t *testing.T) {
	mgr := newTestJWTManager(clockwork.NewRealClock())
	now := time.Now()
	mixed := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   uuid.NewString(),
			Audience:  jwt.ClaimStrings{string(RealmPlayer)},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Realm: RealmResolver,
	})
	token, err := mixed.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmResolver)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateMiddleware(t *testing.T) {
	mgr := newTestJWTManager(clockwork.NewRealClock())
	playerID := uuid.New()
	playerToken, err := mgr.GenerateToken(RealmPlayer, playerID)
	require.NoError(t, err)
	resolverToken, err := mgr.GenerateToken(RealmResolver, uuid.New())
	require.NoError(t, err)

	var seen uuid.UUID
	h := AuthenticatePlayer(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := ActorFromContext(r.Context())
		require.True(t, ok)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid player", "Bearer " + playerToken, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + playerToken, http.StatusUnauthorized},
		{"resolver token", "Bearer " + resolverToken, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, playerID, seen)
}
