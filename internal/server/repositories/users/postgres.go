package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/dbx"
	"github.com/dmitrijs2005/filegate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (identity, name, gender, email, phone, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Identity, user.Name,
		dbx.NullString(user.Gender), dbx.NullString(user.Email), dbx.NullString(user.Phone),
		user.PasswordHash).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	query :=
		`SELECT id, identity, name, gender, email, phone, password_hash,
		        is_verified, otp, otp_expires_at, created_at
		 FROM users
		 WHERE identity = $1
		 `

	var (
		gender, email, phone, otp sql.NullString
		otpExpires                sql.NullTime
	)

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, identity).Scan(
		&user.ID, &user.Identity, &user.Name, &gender, &email, &phone, &user.PasswordHash,
		&user.Verified, &otp, &otpExpires, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Gender = gender.String
	user.Email = email.String
	user.Phone = phone.String
	if otp.Valid && otpExpires.Valid {
		user.OTP = &models.OTPChallenge{Code: otp.String, ExpiresAt: otpExpires.Time}
	}

	return user, nil
}

// ExistsAny reports whether any user already holds the identity, email or
// phone. Empty email/phone are sent as NULL and never match.
func (r *PostgresRepository) ExistsAny(ctx context.Context, identity, email, phone string) (bool, error) {
	query :=
		`SELECT EXISTS (
		     SELECT 1 FROM users
		     WHERE identity = $1 OR email = $2 OR phone = $3
		 )
		 `

	var exists bool
	err := r.db.QueryRowContext(ctx, query, identity, dbx.NullString(email), dbx.NullString(phone)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

// SetOTP replaces the pending code of an unverified user.
func (r *PostgresRepository) SetOTP(ctx context.Context, identity string, otp models.OTPChallenge) error {
	query :=
		`UPDATE users SET otp = $2, otp_expires_at = $3
		 WHERE identity = $1 AND is_verified = FALSE
		 `

	res, err := r.db.ExecContext(ctx, query, identity, otp.Code, otp.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) ConsumeOTP(ctx context.Context, identity, code string, now time.Time) (bool, error) {
	query :=
		`UPDATE users SET is_verified = TRUE, otp = NULL, otp_expires_at = NULL
		 WHERE identity = $1 AND otp = $2 AND otp_expires_at >= $3
		 `

	res, err := r.db.ExecContext(ctx, query, identity, code, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n == 1, nil
}
