// Package userstest provides an in-memory users.Repository for tests.
// It is not wired into the server; production always uses Postgres.
package userstest

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/server/models"
)

// MemoryRepository keeps users in a map guarded by a mutex. Every method
// holds the lock for its whole duration, which gives ConsumeOTP the same
// compare-and-clear atomicity as the SQL UPDATE.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*models.User

	// Writes counts mutating calls that changed a row.
	Writes int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: map[string]*models.User{}}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.existsLocked(user.Identity, user.Email, user.Phone) {
		return nil, common.ErrConflict
	}

	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	r.users[user.Identity] = clone(user)
	r.Writes++
	return user, nil
}

func (r *MemoryRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[identity]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) ExistsAny(ctx context.Context, identity, email, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.existsLocked(identity, email, phone), nil
}

func (r *MemoryRepository) SetOTP(ctx context.Context, identity string, otp models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[identity]
	if !ok || u.Verified {
		return common.ErrorNotFound
	}
	u.OTP = &otp
	r.Writes++
	return nil
}

func (r *MemoryRepository) ConsumeOTP(ctx context.Context, identity, code string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[identity]
	if !ok || u.OTP == nil || u.OTP.Code != code || u.OTP.Expired(now) {
		return false, nil
	}
	u.OTP = nil
	u.Verified = true
	r.Writes++
	return true, nil
}

// Put stores u as is, replacing any user with the same identity.
func (r *MemoryRepository) Put(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Identity] = clone(u)
}

func (r *MemoryRepository) existsLocked(identity, email, phone string) bool {
	for _, u := range r.users {
		if u.Identity == identity ||
			(email != "" && u.Email == email) ||
			(phone != "" && u.Phone == phone) {
			return true
		}
	}
	return false
}

func clone(u *models.User) *models.User {
	c := *u
	if u.OTP != nil {
		otp := *u.OTP
		c.OTP = &otp
	}
	return &c
}
