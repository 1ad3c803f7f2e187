package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const audience = "gatepass-api"

type Role string

const (
	RoleGuard     Role = "guard"
	RoleOrganiser Role = "organiser"
	RoleCSO       Role = "cso"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleGuard, RoleOrganiser, RoleCSO:
		return Role(s), true
	default:
		return "", false
	}
}

type Claims struct {
	Sub      int64  `json:"sub"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Session is the authenticated caller handed to service methods. A nil
// *Session means an anonymous (public) caller.
type Session struct {
	UserID   int64
	Username string
	Role     Role
}

func (s *Session) Is(role Role) bool {
	return s != nil && s.Role == role
}

func (c *Claims) Session() *Session {
	return &Session{UserID: c.Sub, Username: c.Username, Role: c.Role}
}

func NewAccessToken(sub int64, username string, role Role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:      sub,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", sub),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if _, ok := ParseRole(string(claims.Role)); !ok {
		return nil, fmt.Errorf("invalid token role %q", claims.Role)
	}
	return claims, nil
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored by WithSession, or nil.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
