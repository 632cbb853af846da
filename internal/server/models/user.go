// Package models holds the persistent records of the gateway.
package models

import "time"

// OTPChallenge is a pending one-time code. A nil *OTPChallenge on a User
// means no code is outstanding.
type OTPChallenge struct {
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// User is a registered account. Optional string fields are empty when absent
// and stored as NULL.
type User struct {
	ID           int64
	Identity     string
	Name         string
	Gender       string
	Email        string
	Phone        string
	PasswordHash string
	Verified     bool
	OTP          *OTPChallenge
	CreatedAt    time.Time
}

// Profile is the public part of a User returned after login.
type Profile struct {
	Identity string `json:"user_id"`
	Name     string `json:"name"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{Identity: u.Identity, Name: u.Name}
}
