// Package common defines sentinel errors and small helpers shared by every
// layer of the gateway. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Validation errors.
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")

	// Authentication errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account not verified")
	ErrAlreadyVerified    = errors.New("account already verified")

	// OTP errors.
	ErrInvalidOTP  = errors.New("invalid otp")
	ErrExpiredOTP  = errors.New("otp expired")
	ErrRateLimited = errors.New("too many requests")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Storage namespace errors.
	ErrAccessDenied = errors.New("access denied")

	// Transport errors. Details are logged, never returned to clients.
	ErrDispatchFailure = errors.New("otp dispatch failed")
	ErrStorageFailure  = errors.New("storage error")
)
