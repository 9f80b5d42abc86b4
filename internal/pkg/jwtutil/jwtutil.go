package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded caller identity. Tokens are issued by the external
// dashboard/auth layer; this package only validates and decodes them.
// FirstParty marks the product's own client, which bypasses tier gating.
type Claims struct {
	ProjectID  uint   `json:"project_id"`
	TeamID     uint   `json:"team_id"`
	Tier       string `json:"tier"`
	FirstParty bool   `json:"fp"`
	jwt.RegisteredClaims
}

// SignToken issues a project-scoped token. Used by tooling and tests; the
// production issuer lives outside this service.
func SignToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ProjectID == 0 {
		return nil, errors.New("token has no project scope")
	}
	return claims, nil
}
