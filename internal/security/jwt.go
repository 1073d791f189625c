package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token subject kinds.
const (
	subjectUser  = "user"
	subjectAdmin = "admin"
)

// UserClaims are the JWT claims for an end-user session.
type UserClaims struct {
	UserID uint64 `json:"uid"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// AdminClaims are the JWT claims for an admin session.
type AdminClaims struct {
	AdminID uint64 `json:"aid"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

// SignUserToken issues a signed user session token.
func SignUserToken(secret string, userID uint64, expiry time.Duration) (string, error) {
	return signToken(secret, UserClaims{
		UserID: userID,
		Kind:   subjectUser,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
		},
	})
}

// SignAdminToken issues a signed admin session token.
func SignAdminToken(secret string, adminID uint64, expiry time.Duration) (string, error) {
	return signToken(secret, AdminClaims{
		AdminID: adminID,
		Kind:    subjectAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
		},
	})
}

func signToken(secret string, claims jwt.Claims) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("security: empty jwt secret")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

// ParseUserToken validates a user session token and returns its claims.
func ParseUserToken(secret, token string) (*UserClaims, error) {
	claims := &UserClaims{}
	if errParse := parseToken(secret, token, claims); errParse != nil {
		return nil, errParse
	}
	if claims.Kind != subjectUser || claims.UserID == 0 {
		return nil, fmt.Errorf("security: not a user token")
	}
	return claims, nil
}

// ParseAdminToken validates an admin session token and returns its claims.
func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if errParse := parseToken(secret, token, claims); errParse != nil {
		return nil, errParse
	}
	if claims.Kind != subjectAdmin || claims.AdminID == 0 {
		return nil, fmt.Errorf("security: not an admin token")
	}
	return claims, nil
}

func parseToken(secret, token string, claims jwt.Claims) error {
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return fmt.Errorf("security: parse token: %w", errParse)
	}
	if !parsed.Valid {
		return fmt.Errorf("security: invalid token")
	}
	return nil
}
