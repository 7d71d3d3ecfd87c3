package biz

import (
	"context"
	"time"
)

// DefaultUsername is the bootstrap owner of this single-user deployment
const DefaultUsername = "owner"

// User owns catalog entries. The deployment is single-user; the default
// owner is created on startup and every request acts as it.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	TelegramID  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRepo persists users
type UserRepo interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}

// EnsureDefaultUser returns the default owner, creating it when absent
func EnsureDefaultUser(ctx context.Context, repo UserRepo) (*User, error) {
	user, err := repo.GetByUsername(ctx, DefaultUsername)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &User{
		Username:    DefaultUsername,
		DisplayName: "TeleDrive",
	}
	if err := repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
