// Package auth issues and checks the gateway's bearer tokens and password
// verifiers.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken signs an HS256 token whose subject is identity.
func GenerateToken(identity string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetIdentityFromToken validates tokenString and returns its subject.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// validation yields common.ErrInvalidToken.
func GetIdentityFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
