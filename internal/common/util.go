package common

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"
)

// MakeRandHexString generates size random bytes and returns them hex encoded,
// so the result is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateDigits returns n decimal digits drawn uniformly from crypto/rand.
// Leading zeros are kept, so the result is always exactly n characters.
func GenerateDigits(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}
