// Package users is the credential store: persistence of user records and
// their pending OTP challenge.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filegate/internal/server/models"
)

// Repository persists users.
//
// Create returns common.ErrConflict when identity, email or phone is taken.
// GetByIdentity and SetOTP return common.ErrorNotFound when no row matches.
// ConsumeOTP atomically clears a matching, unexpired code and marks the user
// verified; it reports false without touching the row otherwise.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	ExistsAny(ctx context.Context, identity, email, phone string) (bool, error)
	SetOTP(ctx context.Context, identity string, otp models.OTPChallenge) error
	ConsumeOTP(ctx context.Context, identity, code string, now time.Time) (bool, error)
}
