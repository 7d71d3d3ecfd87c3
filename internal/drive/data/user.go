package data

import (
	"context"
	"time"

	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/database"
)

// UserPO represents the database model of an owner
type UserPO struct {
	ID          int64  `gorm:"primarykey"`
	Username    string `gorm:"size:64;not null;uniqueIndex"`
	DisplayName string `gorm:"size:128"`
	TelegramID  int64  `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (UserPO) TableName() string {
	return "users"
}

// UserRepo implements biz.UserRepo on postgres
type UserRepo struct {
	db *database.DB
}

func NewUserRepo(db *database.DB) biz.UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*biz.User, error) {
	var po UserPO
	err := r.db.GetDBFromContext(ctx).
		Where("username = ?", username).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toUser(&po), nil
}

func (r *UserRepo) Create(ctx context.Context, user *biz.User) error {
	po := &UserPO{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		TelegramID:  user.TelegramID,
	}
	if err := r.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return err
	}
	user.ID = po.ID
	user.CreatedAt = po.CreatedAt
	user.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *UserRepo) Update(ctx context.Context, user *biz.User) error {
	return r.db.GetDBFromContext(ctx).
		Model(&UserPO{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"display_name": user.DisplayName,
			"telegram_id":  user.TelegramID,
		}).Error
}

func toUser(po *UserPO) *biz.User {
	return &biz.User{
		ID:          po.ID,
		Username:    po.Username,
		DisplayName: po.DisplayName,
		TelegramID:  po.TelegramID,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}
