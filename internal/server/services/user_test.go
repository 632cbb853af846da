package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/dmitrijs2005/filegate/internal/server/auth"
	"github.com/dmitrijs2005/filegate/internal/server/config"
	"github.com/dmitrijs2005/filegate/internal/server/models"
	"github.com/dmitrijs2005/filegate/internal/server/notify"
	"github.com/dmitrijs2005/filegate/internal/server/otp"
	"github.com/dmitrijs2005/filegate/internal/server/ratelimit"
	"github.com/dmitrijs2005/filegate/internal/server/repositories/users/userstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type recordingSender struct {
	mu    sync.Mutex
	err   error
	sent  map[string]string
	calls int
}

func (r *recordingSender) Send(_ context.Context, destination, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	if r.sent == nil {
		r.sent = map[string]string{}
	}
	r.sent[destination] = code
	return nil
}

func (r *recordingSender) last(dest string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[dest]
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) error { return common.ErrRateLimited }

type userFixture struct {
	svc    *UserService
	mgr    *userstest.Manager
	sender *recordingSender
	mock   sqlmock.Sqlmock
	db     *sql.DB
}

func newUserFixture(t *testing.T, mutate func(cfg *config.Config)) *userFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	if mutate != nil {
		mutate(cfg)
	}

	mgr := userstest.NewManager()
	sender := &recordingSender{}
	logger := logging.Nop()
	d := notify.NewDispatcher(cfg.OTPChannel, sender, time.Second, logger)
	engine := otp.NewEngine(db, mgr, cfg)

	svc := NewUserService(db, mgr, engine, d, ratelimit.Nop{}, cfg, logger)
	return &userFixture{svc: svc, mgr: mgr, sender: sender, mock: mock, db: db}
}

func (f *userFixture) expectTx() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *userFixture) putUser(t *testing.T, u *models.User, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u.PasswordHash = hash
	f.mgr.Repo.Put(u)
}

func bobInput() RegisterInput {
	return RegisterInput{
		Identity: "bob",
		Name:     "Bob",
		Email:    "bob@example.com",
		Password: "pw1",
	}
}

// --- Register ---

func TestRegister_DispatchesCodeByEmail(t *testing.T) {
	f := newUserFixture(t, nil)
	f.expectTx()

	out, err := f.svc.Register(context.Background(), bobInput())
	require.NoError(t, err)
	assert.Equal(t, "bob", out.Identity)
	assert.Equal(t, config.ChannelEmail, out.Channel)
	assert.Empty(t, out.Code, "code must not leak outside test mode")

	code := f.sender.last("bob@example.com")
	assert.Len(t, code, 6)

	u, err := f.mgr.Repo.GetByIdentity(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, u.Verified)
	require.NotNil(t, u.OTP)
	assert.Equal(t, code, u.OTP.Code)
	assert.NotEqual(t, "pw1", u.PasswordHash)
	assert.True(t, auth.CheckPassword(u.PasswordHash, "pw1"))

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_TestModeReturnsCode(t *testing.T) {
	f := newUserFixture(t, func(cfg *config.Config) { cfg.TestMode = true })
	f.expectTx()

	in := bobInput()
	in.Email = ""
	out, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, out.Code, 6)
	assert.Equal(t, 0, f.sender.calls)

	u, err := f.mgr.Repo.GetByIdentity(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, out.Code, u.OTP.Code)
}

func TestRegister_SMSChannelNeedsMobile(t *testing.T) {
	f := newUserFixture(t, func(cfg *config.Config) { cfg.OTPChannel = config.ChannelSMS })

	_, err := f.svc.Register(context.Background(), bobInput())
	assert.ErrorIs(t, err, common.ErrMissingField)
	assert.ErrorContains(t, err, "mobile")

	_, err = f.mgr.Repo.GetByIdentity(context.Background(), "bob")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRegister_SMSChannelSendsToMobile(t *testing.T) {
	f := newUserFixture(t, func(cfg *config.Config) { cfg.OTPChannel = config.ChannelSMS })
	f.expectTx()

	in := bobInput()
	in.Phone = "+15551234567"
	_, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, f.sender.last("+15551234567"), 6)
}

func TestRegister_DispatchFailureKeepsRecord(t *testing.T) {
	f := newUserFixture(t, nil)
	f.expectTx()
	f.sender.err = errors.New("smtp down")

	_, err := f.svc.Register(context.Background(), bobInput())
	assert.ErrorIs(t, err, common.ErrDispatchFailure)

	u, err := f.mgr.Repo.GetByIdentity(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, u.Verified)
	assert.NotNil(t, u.OTP)
}

func TestRegister_Conflict(t *testing.T) {
	f := newUserFixture(t, nil)
	f.putUser(t, &models.User{Identity: "bob", Email: "bob@example.com"}, "x")

	cases := []RegisterInput{
		bobInput(),
		{Identity: "robert", Name: "Bob", Email: "bob@example.com", Password: "pw"},
	}

	for _, in := range cases {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := f.svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, common.ErrConflict, in.Identity)
	}
	assert.Equal(t, 0, f.sender.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *RegisterInput)
		want  error
		field string
	}{
		{"missing identity", func(in *RegisterInput) { in.Identity = "" }, common.ErrMissingField, "user_id"},
		{"missing name", func(in *RegisterInput) { in.Name = "" }, common.ErrMissingField, "name"},
		{"missing password", func(in *RegisterInput) { in.Password = "" }, common.ErrMissingField, "password"},
		{"slash in identity", func(in *RegisterInput) { in.Identity = "bob/../alice" }, common.ErrInvalidField, "user_id"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, common.ErrInvalidField, "email"},
		{"bad mobile", func(in *RegisterInput) { in.Phone = "555" }, common.ErrInvalidField, "mobile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t, nil)
			in := bobInput()
			tt.edit(&in)

			_, err := f.svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorContains(t, err, tt.field)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

// --- VerifyOTP ---

func TestVerifyOTP(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	f.putUser(t, &models.User{
		Identity: "bob",
		OTP:      &models.OTPChallenge{Code: "123456", ExpiresAt: time.Now().Add(time.Minute)},
	}, "pw1")
	f.putUser(t, &models.User{
		Identity: "late",
		OTP:      &models.OTPChallenge{Code: "111111", ExpiresAt: time.Now().Add(-time.Second)},
	}, "pw1")

	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "", "123456"), common.ErrMissingField)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "bob", ""), common.ErrMissingField)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "nobody", "123456"), common.ErrorNotFound)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "bob", "000000"), common.ErrInvalidOTP)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "late", "111111"), common.ErrExpiredOTP)

	require.NoError(t, f.svc.VerifyOTP(ctx, "bob", "123456"))
	u, _ := f.mgr.Repo.GetByIdentity(ctx, "bob")
	assert.True(t, u.Verified)
	assert.Nil(t, u.OTP)

	// single use
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "bob", "123456"), common.ErrInvalidOTP)
}

// --- ResendOTP ---

func TestResendOTP(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	f.putUser(t, &models.User{
		Identity: "bob",
		Email:    "bob@example.com",
		OTP:      &models.OTPChallenge{Code: "000000", ExpiresAt: time.Now().Add(-time.Minute)},
	}, "pw1")
	f.putUser(t, &models.User{Identity: "done", Email: "done@example.com", Verified: true}, "pw1")

	_, err := f.svc.ResendOTP(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.svc.ResendOTP(ctx, "done")
	assert.ErrorIs(t, err, common.ErrAlreadyVerified)

	_, err = f.svc.ResendOTP(ctx, "bob")
	require.NoError(t, err)

	code := f.sender.last("bob@example.com")
	require.Len(t, code, 6)
	require.NoError(t, f.svc.VerifyOTP(ctx, "bob", code))
}

func TestResendOTP_RateLimited(t *testing.T) {
	f := newUserFixture(t, nil)
	f.svc.limiter = denyLimiter{}
	f.putUser(t, &models.User{Identity: "bob", Email: "bob@example.com"}, "pw1")

	_, err := f.svc.ResendOTP(context.Background(), "bob")
	assert.ErrorIs(t, err, common.ErrRateLimited)
	assert.Equal(t, 0, f.sender.calls)
}

// --- Login ---

func TestLogin(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	f.putUser(t, &models.User{Identity: "bob", Name: "Bob", Verified: true}, "pw1")
	f.putUser(t, &models.User{Identity: "eve", Name: "Eve"}, "pw2")

	_, err := f.svc.Login(ctx, "nobody", "pw1")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	// unverified wins over the password check
	_, err = f.svc.Login(ctx, "eve", "wrong")
	assert.ErrorIs(t, err, common.ErrNotVerified)
	_, err = f.svc.Login(ctx, "eve", "pw2")
	assert.ErrorIs(t, err, common.ErrNotVerified)

	_, err = f.svc.Login(ctx, "bob", "")
	assert.ErrorIs(t, err, common.ErrMissingField)

	res, err := f.svc.Login(ctx, "bob", "pw1")
	require.NoError(t, err)
	assert.Equal(t, models.Profile{Identity: "bob", Name: "Bob"}, res.Profile)

	sub, err := auth.GetIdentityFromToken(res.AccessToken, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "bob", sub)
}

func TestUserService_RegisterVerifyLogin(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()
	f.expectTx()

	_, err := f.svc.Register(ctx, bobInput())
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "bob", "pw1")
	require.ErrorIs(t, err, common.ErrNotVerified)

	code := f.sender.last("bob@example.com")
	require.NoError(t, f.svc.VerifyOTP(ctx, "bob", code))

	res, err := f.svc.Login(ctx, "bob", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	writes := f.mgr.Repo.Writes
	_, err = f.svc.Login(ctx, "bob", "pw1")
	require.NoError(t, err)
	assert.Equal(t, writes, f.mgr.Repo.Writes, "login must not write")
}
