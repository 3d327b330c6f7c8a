package dashboard

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// operatorRole is the single role the dashboard recognises. There is no user
// database: one shared secret (security.jwt.secret) authenticates whoever
// operates this room's controller, exchanged for a short-lived bearer token.
const operatorRole = "operator"

// Claims are the JWT claims issued to an authenticated operator.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// generateToken signs a short-lived operator token.
func generateToken(roomID, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   roomID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: operatorRole,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return signed, nil
}

// parseToken validates and parses a bearer token.
func parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != operatorRole {
		return nil, fmt.Errorf("invalid token: wrong role")
	}

	return claims, nil
}
