package data

import (
	"context"
	"time"

	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/database"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"gorm.io/gorm"
)

// ShareLinkPO represents the database model of a share link
type ShareLinkPO struct {
	ID           int64  `gorm:"primarykey"`
	OwnerID      int64  `gorm:"not null;index"`
	FileID       int64  `gorm:"not null;index"`
	Token        string `gorm:"size:64;not null;uniqueIndex"`
	Name         string `gorm:"size:255"`
	Description  string `gorm:"type:text"`
	PasswordHash string `gorm:"size:60"`
	ExpiresAt    *time.Time
	MaxViews     int  `gorm:"not null;default:0"`
	MaxDownloads int  `gorm:"not null;default:0"`
	Views        int  `gorm:"not null;default:0"`
	Downloads    int  `gorm:"not null;default:0"`
	CanView      bool `gorm:"not null;default:true"`
	CanPreview   bool `gorm:"not null;default:true"`
	CanDownload  bool `gorm:"not null;default:true"`
	Active       bool `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ShareLinkPO) TableName() string {
	return "share_links"
}

// ShareRepo implements biz.ShareRepo on postgres
type ShareRepo struct {
	db *database.DB
}

func NewShareRepo(db *database.DB) biz.ShareRepo {
	return &ShareRepo{db: db}
}

func (r *ShareRepo) Create(ctx context.Context, link *biz.ShareLink) error {
	po := toSharePO(link)
	if err := r.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return err
	}
	link.ID = po.ID
	link.CreatedAt = po.CreatedAt
	link.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *ShareRepo) Update(ctx context.Context, link *biz.ShareLink) error {
	return r.db.GetDBFromContext(ctx).
		Model(&ShareLinkPO{}).
		Where("id = ? AND owner_id = ?", link.ID, link.OwnerID).
		Updates(map[string]interface{}{
			"name":          link.Name,
			"description":   link.Description,
			"password_hash": link.PasswordHash,
			"expires_at":    link.ExpiresAt,
			"max_views":     link.MaxViews,
			"max_downloads": link.MaxDownloads,
			"can_view":      link.CanView,
			"can_preview":   link.CanPreview,
			"can_download":  link.CanDownload,
			"active":        link.Active,
		}).Error
}

func (r *ShareRepo) Delete(ctx context.Context, ownerID, id int64) error {
	result := r.db.GetDBFromContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&ShareLinkPO{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrShareNotFound)
	}
	return nil
}

func (r *ShareRepo) GetByID(ctx context.Context, ownerID, id int64) (*biz.ShareLink, error) {
	var po ShareLinkPO
	err := r.db.GetDBFromContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.New(apperrors.ErrShareNotFound)
		}
		return nil, err
	}
	return toShare(&po), nil
}

func (r *ShareRepo) GetByToken(ctx context.Context, token string) (*biz.ShareLink, error) {
	var po ShareLinkPO
	err := r.db.GetDBFromContext(ctx).
		Where("token = ?", token).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toShare(&po), nil
}

func (r *ShareRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*biz.ShareLink, error) {
	var pos []ShareLinkPO
	err := r.db.GetDBFromContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	links := make([]*biz.ShareLink, len(pos))
	for i := range pos {
		links[i] = toShare(&pos[i])
	}
	return links, nil
}

// IncrementViews bumps the counter only while under the limit. The
// guard runs inside the UPDATE so concurrent accesses never overshoot.
func (r *ShareRepo) IncrementViews(ctx context.Context, id int64) (bool, error) {
	result := r.db.GetDBFromContext(ctx).
		Model(&ShareLinkPO{}).
		Where("id = ? AND (max_views = 0 OR views < max_views)", id).
		Update("views", gorm.Expr("views + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ShareRepo) IncrementDownloads(ctx context.Context, id int64) (bool, error) {
	result := r.db.GetDBFromContext(ctx).
		Model(&ShareLinkPO{}).
		Where("id = ? AND (max_downloads = 0 OR downloads < max_downloads)", id).
		Update("downloads", gorm.Expr("downloads + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func toSharePO(l *biz.ShareLink) *ShareLinkPO {
	return &ShareLinkPO{
		ID:           l.ID,
		OwnerID:      l.OwnerID,
		FileID:       l.FileID,
		Token:        l.Token,
		Name:         l.Name,
		Description:  l.Description,
		PasswordHash: l.PasswordHash,
		ExpiresAt:    l.ExpiresAt,
		MaxViews:     l.MaxViews,
		MaxDownloads: l.MaxDownloads,
		Views:        l.Views,
		Downloads:    l.Downloads,
		CanView:      l.CanView,
		CanPreview:   l.CanPreview,
		CanDownload:  l.CanDownload,
		Active:       l.Active,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func toShare(po *ShareLinkPO) *biz.ShareLink {
	return &biz.ShareLink{
		ID:           po.ID,
		OwnerID:      po.OwnerID,
		FileID:       po.FileID,
		Token:        po.Token,
		Name:         po.Name,
		Description:  po.Description,
		PasswordHash: po.PasswordHash,
		ExpiresAt:    po.ExpiresAt,
		MaxViews:     po.MaxViews,
		MaxDownloads: po.MaxDownloads,
		Views:        po.Views,
		Downloads:    po.Downloads,
		CanView:      po.CanView,
		CanPreview:   po.CanPreview,
		CanDownload:  po.CanDownload,
		Active:       po.Active,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
	}
}
