// Package cluster issues join credentials for the fleet and relays the
// node roster. It never computes node liveness itself; status comes
// from the roster and is passed through as observed.
package cluster

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ushadow/orchestrator/models"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrTokenExhausted = errors.New("token has been used maximum times")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrInvalidRole    = errors.New("invalid role")
)

const (
	defaultMaxUses      = 1
	defaultExpiresHours = 24
)

// JoinClaims is the payload carried inside a signed join token. The
// token is opaque to callers; only the issuer reads the claims back.
type JoinClaims struct {
	Role models.NodeRole `json:"role"`
	jwt.RegisteredClaims
}

type tokenRecord struct {
	tokenHash []byte
	token     models.JoinToken
	revoked   bool
}

// Issuer creates and validates bounded-use join tokens. Tokens are
// HS256 JWTs; only a bcrypt hash of the signed token is kept at rest.
type Issuer struct {
	secret []byte

	mu      sync.Mutex
	records map[string]*tokenRecord
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret:  []byte(secret),
		records: make(map[string]*tokenRecord),
	}
}

// CreateToken issues a join token for the given role. The token stays
// valid until it expires or its uses reach maxUses, whichever comes
// first; a spent token is never reissued. Zero maxUses and
// expiresInHours fall back to 1 use and 24 hours.
func (i *Issuer) CreateToken(role models.NodeRole, maxUses, expiresInHours int) (models.JoinToken, error) {
	if len(i.secret) == 0 {
		return models.JoinToken{}, fmt.Errorf("token secret is required")
	}
	if !models.ValidRole(role) {
		return models.JoinToken{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if maxUses <= 0 {
		maxUses = defaultMaxUses
	}
	if expiresInHours <= 0 {
		expiresInHours = defaultExpiresHours
	}

	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(expiresInHours) * time.Hour)
	id := uuid.NewString()

	claims := JoinClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "ushadow-orchestrator",
			Subject:   "join",
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return models.JoinToken{}, fmt.Errorf("failed to sign join token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(signed), bcrypt.DefaultCost)
	if err != nil {
		return models.JoinToken{}, fmt.Errorf("failed to hash join token: %w", err)
	}

	issued := models.JoinToken{
		Token:     signed,
		Role:      role,
		MaxUses:   maxUses,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	// The raw token is returned exactly once; the record keeps only
	// the hash.
	stored := issued
	stored.Token = ""

	i.mu.Lock()
	i.records[id] = &tokenRecord{tokenHash: hash, token: stored}
	i.mu.Unlock()

	log.Printf("Issued %s join token (expires %s, max uses %d)", role, expiresAt.Format(time.RFC3339), maxUses)
	return issued, nil
}

// ValidateToken checks a presented token and consumes one use on
// success. The returned record carries the remaining-use accounting.
func (i *Issuer) ValidateToken(tokenString string) (models.JoinToken, error) {
	claims := &JoinClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.JoinToken{}, ErrExpiredToken
		}
		return models.JoinToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return models.JoinToken{}, ErrInvalidToken
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	record, ok := i.records[claims.ID]
	if !ok {
		return models.JoinToken{}, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword(record.tokenHash, []byte(tokenString)); err != nil {
		return models.JoinToken{}, ErrInvalidToken
	}
	if record.revoked {
		return models.JoinToken{}, ErrTokenRevoked
	}
	if record.token.Exhausted() {
		return models.JoinToken{}, ErrTokenExhausted
	}

	record.token.Uses++
	return record.token, nil
}

// Revoke invalidates a token by id before its natural expiry.
func (i *Issuer) Revoke(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	record, ok := i.records[id]
	if !ok {
		return ErrInvalidToken
	}
	record.revoked = true
	return nil
}
