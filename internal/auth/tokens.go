package auth

import (
	"errors"
	"fmt"
	"time"

	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"

	"prompt-chaining/backend/pkg/models"
)

const tokenIssuer = "prompt-chaining"

// ErrInvalidToken is returned for access tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the application claims carried by an access token.
type AccessClaims struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	key    []byte
	ttl    time.Duration
	signer jose.Signer
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer for secret whose tokens live for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	key := []byte(secret)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	return &TokenIssuer{key: key, ttl: ttl, signer: signer, now: time.Now}, nil
}

// Issue returns a signed access token for the user.
func (t *TokenIssuer) Issue(userID string, role models.Role) (string, error) {
	now := t.now()
	std := jwt.Claims{
		Issuer:   tokenIssuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.Signed(t.signer).
		Claims(std).
		Claims(AccessClaims{UserID: userID, Role: role}).
		CompactSerialize()
}

// Verify checks the signature and expiry of raw and returns its claims.
func (t *TokenIssuer) Verify(raw string) (*AccessClaims, error) {
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var (
		std    jwt.Claims
		claims AccessClaims
	)
	if err := tok.Claims(t.key, &std, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: tokenIssuer, Time: t.now()}, 0); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
