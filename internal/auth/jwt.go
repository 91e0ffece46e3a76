package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Issuer is stamped on every token this service signs.
const Issuer = "clash-arena"

// clockSkew tolerates small clock differences between the signer and the API.
const clockSkew = 5 * time.Second

// ErrInvalidToken wraps every validation failure.
var ErrInvalidToken = errors.New("invalid token")

// Realm identifies who a token was issued to. It doubles as the token audience.
type Realm string

const (
	// RealmPlayer tokens belong to game participants.
	RealmPlayer Realm = "player"
	// RealmResolver tokens belong to the process that decides winners.
	RealmResolver Realm = "resolver"
)

// Claims carries the subject uuid and realm.
type Claims struct {
	jwt.RegisteredClaims
	Realm Realm `json:"realm"`
}

// JWTManager signs and verifies HS256 tokens.
type JWTManager struct {
	secret []byte
	expiry map[Realm]time.Duration
	clock  clockwork.Clock
}

func NewJWTManager(secret string, playerExpiry, resolverExpiry time.Duration, clock clockwork.Clock) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: map[Realm]time.Duration{
			RealmPlayer:   playerExpiry,
			RealmResolver: resolverExpiry,
		},
		clock: clock,
	}
}

// GenerateToken signs a token for subjectID in realm.
func (m *JWTManager) GenerateToken(realm Realm, subjectID uuid.UUID) (string, error) {
	ttl, ok := m.expiry[realm]
	if !ok {
		return "", fmt.Errorf("unknown realm: %s", realm)
	}

	now := m.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subjectID.String(),
			Audience:  jwt.ClaimStrings{string(realm)},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Realm: realm,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken checks signature, issuer and expiry, and that the subject is a uuid.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateTokenForRealm validates a token and requires both the realm claim and
// the audience to match expected.
func (m *JWTManager) ValidateTokenForRealm(tokenString string, expected Realm) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Realm != expected || !slices.Contains(claims.Audience, string(expected)) {
		return nil, fmt.Errorf("%w: expected realm %s, got %s", ErrInvalidToken, expected, claims.Realm)
	}
	return claims, nil
}
