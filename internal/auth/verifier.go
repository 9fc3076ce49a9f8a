package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 bearer tokens and turns them into actors.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(tokenStr string) (domain.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Actor{}, domain.UnauthenticatedError("invalid or expired token")
	}

	actor := domain.Actor{ID: claims.Subject, Role: domain.Role(claims.Role)}
	if actor.ID == "" {
		return domain.Actor{}, domain.UnauthenticatedError("token has no subject")
	}
	if !actor.Role.Valid() {
		return domain.Actor{}, domain.UnauthenticatedError("token has an unknown role")
	}
	return actor, nil
}

// Issue signs a token for actor. Used by tooling and tests; login lives
// in the identity service.
func (v *JWTVerifier) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("token signing error: %w", err)
	}
	return signed, nil
}
