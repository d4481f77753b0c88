package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/carecircle/internal/models"
)

// Session is what a valid token tells us about the caller.
type Session struct {
	AccountID string
	Role      models.Role
}

type jwtCustomClaims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the provided account.
func GenerateToken(secret string, accountID string, role models.Role, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		UserID: accountID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded session.
func ParseToken(secret, tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Session{}, err
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid && claims.UserID != "" && claims.Role.Valid() {
		return Session{AccountID: claims.UserID, Role: claims.Role}, nil
	}

	return Session{}, jwt.ErrTokenInvalidClaims
}
