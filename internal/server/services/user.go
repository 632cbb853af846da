// Package services contains the gateway's business logic. This file
// implements UserService: registration, OTP verification and resend, and
// login.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/dbx"
	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/dmitrijs2005/filegate/internal/server/auth"
	"github.com/dmitrijs2005/filegate/internal/server/config"
	"github.com/dmitrijs2005/filegate/internal/server/models"
	"github.com/dmitrijs2005/filegate/internal/server/otp"
	"github.com/dmitrijs2005/filegate/internal/server/ratelimit"
	"github.com/dmitrijs2005/filegate/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
)

// Dispatcher delivers a code to a user over the configured channel.
type Dispatcher interface {
	Channel() string
	Destination(user *models.User) string
	Dispatch(ctx context.Context, user *models.User, code string) error
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Identity string `json:"user_id" validate:"required,identity"`
	Name     string `json:"name" validate:"required,max=150"`
	Gender   string `json:"gender" validate:"omitempty,max=20"`
	Email    string `json:"email" validate:"omitempty,email,max=150"`
	Phone    string `json:"mobile" validate:"omitempty,e164"`
	Password string `json:"password" validate:"required"`
}

// OTPDelivery describes where a fresh code went. Code is filled only in test
// mode, where nothing is dispatched.
type OTPDelivery struct {
	Identity string
	Channel  string
	Code     string
}

// LoginResult is a bearer token plus the public profile of its subject.
type LoginResult struct {
	AccessToken string
	Profile     models.Profile
}

type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	otp                         *otp.Engine
	dispatcher                  Dispatcher
	limiter                     ratelimit.Limiter
	validate                    *validator.Validate
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	testMode                    bool
	logger                      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, e *otp.Engine, d Dispatcher,
	l ratelimit.Limiter, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		otp:                         e,
		dispatcher:                  d,
		limiter:                     l,
		validate:                    newValidator(),
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		testMode:                    cfg.TestMode,
		logger:                      logger.With("module", "user_service"),
	}
}

// Register creates an unverified user and sends it an OTP.
//
// The user row and its OTP are written in one transaction. Dispatch happens
// after commit; when it fails the unverified record stays and ResendOTP is
// the way to get a new code.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*OTPDelivery, error) {
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, validationError(err)
	}

	user := &models.User{
		Identity: in.Identity,
		Name:     in.Name,
		Gender:   in.Gender,
		Email:    in.Email,
		Phone:    in.Phone,
	}

	if !s.testMode && s.dispatcher.Destination(user) == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingField, s.contactField())
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	var challenge *models.OTPChallenge
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		exists, err := repo.ExistsAny(ctx, user.Identity, user.Email, user.Phone)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrConflict
		}

		if _, err := repo.Create(ctx, user); err != nil {
			return err
		}

		challenge, err = s.otp.Issue(ctx, user.Identity, tx)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: register: %v", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "user registered", "identity", user.Identity)

	return s.deliver(ctx, user, challenge.Code)
}

// VerifyOTP consumes code and marks identity verified.
func (s *UserService) VerifyOTP(ctx context.Context, identity, code string) error {
	if identity == "" {
		return fmt.Errorf("%w: user_id", common.ErrMissingField)
	}
	if code == "" {
		return fmt.Errorf("%w: otp", common.ErrMissingField)
	}

	if err := s.otp.Verify(ctx, identity, code); err != nil {
		if otp.IsVerificationError(err) {
			return err
		}
		return fmt.Errorf("%w: verify: %v", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "user verified", "identity", identity)
	return nil
}

// ResendOTP issues a replacement code for a user that is still unverified.
func (s *UserService) ResendOTP(ctx context.Context, identity string) (*OTPDelivery, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: user_id", common.ErrMissingField)
	}

	user, err := s.repomanager.Users(s.db).GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: resend: %v", common.ErrorInternal, err)
	}
	if user.Verified {
		return nil, common.ErrAlreadyVerified
	}

	if err := s.limiter.Allow(ctx, identity); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: resend: %v", common.ErrorInternal, err)
	}

	challenge, err := s.otp.Issue(ctx, identity, nil)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// verified between the read and the write
			return nil, common.ErrAlreadyVerified
		}
		return nil, fmt.Errorf("%w: resend: %v", common.ErrorInternal, err)
	}

	return s.deliver(ctx, user, challenge.Code)
}

// Login checks credentials and returns a bearer token for identity.
//
// Unknown identity and wrong password are both common.ErrInvalidCredentials.
// An unverified account is common.ErrNotVerified whatever the password.
func (s *UserService) Login(ctx context.Context, identity, password string) (*LoginResult, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: user_id", common.ErrMissingField)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password", common.ErrMissingField)
	}

	user, err := s.repomanager.Users(s.db).GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// spend the same bcrypt time as a real check
			auth.CheckPassword(s.getDummyHash(), password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: login: %v", common.ErrorInternal, err)
	}

	if !user.Verified {
		return nil, common.ErrNotVerified
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.Identity, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: sign token: %v", common.ErrorInternal, err)
	}

	return &LoginResult{AccessToken: token, Profile: user.Profile()}, nil
}

// --- helpers below ---

func (s *UserService) deliver(ctx context.Context, user *models.User, code string) (*OTPDelivery, error) {
	out := &OTPDelivery{Identity: user.Identity, Channel: s.dispatcher.Channel()}

	if s.testMode {
		s.logger.Warn(ctx, "test mode: otp returned to caller instead of dispatched", "identity", user.Identity)
		out.Code = code
		return out, nil
	}

	if err := s.dispatcher.Dispatch(ctx, user, code); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserService) contactField() string {
	if s.dispatcher.Channel() == config.ChannelSMS {
		return "mobile"
	}
	return "email"
}

func (s *UserService) getDummyHash() string {
	s.dummyOnce.Do(func() {
		pw, _ := common.MakeRandHexString(16)
		s.dummyHash, _ = auth.HashPassword(pw)
	})
	return s.dummyHash
}
