package auth

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filegate/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt verifier for password. Passwords longer than
// bcrypt's 72 byte limit are rejected as an invalid field.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", common.ErrInvalidField)
		}
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored verifier.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
