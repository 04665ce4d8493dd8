// Package auth issues and verifies the optional bearer JWT that gates
// /ws/audio and /health when AuthConfig.Enabled is set.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Token signs and verifies session-scoped JWTs.
type Token struct {
	secretKey []byte
	ttl       time.Duration
}

// NewToken builds a token helper using secret. A one hour TTL is used
// unless overridden with WithTTL.
func NewToken(secret string) *Token {
	return &Token{secretKey: []byte(secret), ttl: time.Hour}
}

// WithTTL overrides the default token lifetime.
func (t *Token) WithTTL(ttl time.Duration) *Token {
	if ttl > 0 {
		t.ttl = ttl
	}
	return t
}

// Generate issues a JWT scoped to sessionID.
func (t *Token) Generate(sessionID string) (string, error) {
	if len(t.secretKey) == 0 {
		return "", errors.New("auth token secret is empty")
	}
	claims := jwt.MapClaims{
		"session_id": sessionID,
		"exp":        time.Now().Add(t.ttl).Unix(),
		"iat":        time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates tokenString and extracts its session_id claim.
func (t *Token) Verify(tokenString string) (string, error) {
	if len(t.secretKey) == 0 {
		return "", errors.New("auth token secret is empty")
	}
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sessionID, _ := claims["session_id"].(string)
	return sessionID, nil
}

// RequireBearer wraps a plain net/http handler (used for the websocket
// upgrade endpoint, which bypasses gin) with the same bearer check as
// Middleware.
func RequireBearer(token *Token, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := token.Verify(strings.TrimPrefix(header, prefix)); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Middleware rejects requests without a valid "Authorization: Bearer
// <token>" header. It is only installed when AuthConfig.Enabled is true.
func Middleware(token *Token) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		sessionID, err := token.Verify(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("session_id", sessionID)
		c.Next()
	}
}
