// Package otp issues and consumes the one-time codes that verify a new
// account.
package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/dbx"
	"github.com/dmitrijs2005/filegate/internal/server/config"
	"github.com/dmitrijs2005/filegate/internal/server/models"
	"github.com/dmitrijs2005/filegate/internal/server/repositories/repomanager"
)

// Engine owns the OTP lifecycle on the user record. Each Issue or Verify
// performs exactly one write.
type Engine struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	digits      int

	now      func() time.Time
	generate func(n int) (string, error)
}

func NewEngine(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *Engine {
	return &Engine{
		db:          db,
		repomanager: m,
		ttl:         cfg.OTPValidityDuration,
		digits:      cfg.OTPLength,
		now:         time.Now,
		generate:    common.GenerateDigits,
	}
}

// Issue stores a fresh code for the unverified user identity, replacing any
// previous one, and returns it for dispatch. tx may be a running
// transaction; nil means the engine's own pool.
func (e *Engine) Issue(ctx context.Context, identity string, tx dbx.DBTX) (*models.OTPChallenge, error) {
	if tx == nil {
		tx = e.db
	}

	code, err := e.generate(e.digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	challenge := models.OTPChallenge{Code: code, ExpiresAt: e.now().Add(e.ttl)}
	if err := e.repomanager.Users(tx).SetOTP(ctx, identity, challenge); err != nil {
		return nil, err
	}

	return &challenge, nil
}

// Verify consumes code for identity. The match, expiry check and clear happen
// in one conditional update; only when it matches nothing is the record read
// back to tell the caller why.
//
// Errors: common.ErrorNotFound, common.ErrInvalidOTP, common.ErrExpiredOTP.
func (e *Engine) Verify(ctx context.Context, identity, code string) error {
	repo := e.repomanager.Users(e.db)
	now := e.now()

	ok, err := repo.ConsumeOTP(ctx, identity, code, now)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	user, err := repo.GetByIdentity(ctx, identity)
	if err != nil {
		return err
	}

	switch {
	case user.OTP == nil || user.OTP.Code != code:
		return common.ErrInvalidOTP
	case user.OTP.Expired(now):
		return common.ErrExpiredOTP
	default:
		// matched but consumed by a concurrent request
		return common.ErrInvalidOTP
	}
}

// IsVerificationError reports whether err is one of the client-facing
// outcomes of Verify.
func IsVerificationError(err error) bool {
	return errors.Is(err, common.ErrorNotFound) ||
		errors.Is(err, common.ErrInvalidOTP) ||
		errors.Is(err, common.ErrExpiredOTP)
}
