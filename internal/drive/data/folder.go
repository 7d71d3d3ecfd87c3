package data

import (
	"context"
	"time"

	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/database"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"gorm.io/gorm"
)

// FolderPO represents the database model of a folder node
type FolderPO struct {
	ID        int64  `gorm:"primarykey"`
	OwnerID   int64  `gorm:"not null;index:idx_folders_owner_parent,priority:1"`
	Name      string `gorm:"size:255;not null"`
	ParentID  *int64 `gorm:"index:idx_folders_owner_parent,priority:2"`
	Path      string `gorm:"size:1024;not null;index"`
	Deleted   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FolderPO) TableName() string {
	return "folders"
}

// FolderRepo implements biz.FolderRepo on postgres
type FolderRepo struct {
	db *database.DB
}

func NewFolderRepo(db *database.DB) biz.FolderRepo {
	return &FolderRepo{db: db}
}

func (r *FolderRepo) Create(ctx context.Context, folder *biz.Folder) error {
	po := toFolderPO(folder)
	if err := r.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return err
	}
	folder.ID = po.ID
	folder.CreatedAt = po.CreatedAt
	folder.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *FolderRepo) GetByID(ctx context.Context, ownerID, id int64) (*biz.Folder, error) {
	var po FolderPO
	err := r.db.GetDBFromContext(ctx).
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.New(apperrors.ErrFolderNotFound)
		}
		return nil, err
	}
	return toFolder(&po), nil
}

func (r *FolderRepo) ListByParent(ctx context.Context, ownerID int64, parentID *int64) ([]*biz.Folder, error) {
	query := r.db.GetDBFromContext(ctx).
		Where("owner_id = ? AND deleted = false", ownerID)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var pos []FolderPO
	if err := query.Order("name ASC").Find(&pos).Error; err != nil {
		return nil, err
	}

	folders := make([]*biz.Folder, len(pos))
	for i := range pos {
		folders[i] = toFolder(&pos[i])
	}
	return folders, nil
}

// Rename updates the name and cascades the recomputed path to every
// descendant in the same transaction
func (r *FolderRepo) Rename(ctx context.Context, ownerID, id int64, newName string) error {
	return r.db.Transaction(ctx, func(txCtx context.Context, tx *gorm.DB) error {
		folder, err := lockFolder(tx, ownerID, id)
		if err != nil {
			return err
		}

		newPath := replaceLastSegment(folder.Path, newName)
		if err := tx.Model(&FolderPO{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"name": newName, "path": newPath}).Error; err != nil {
			return err
		}
		return cascadePath(tx, ownerID, folder.Path, newPath)
	})
}

// Move reparents the folder and cascades the recomputed path to every
// descendant in the same transaction
func (r *FolderRepo) Move(ctx context.Context, ownerID, id int64, newParentID *int64) error {
	return r.db.Transaction(ctx, func(txCtx context.Context, tx *gorm.DB) error {
		folder, err := lockFolder(tx, ownerID, id)
		if err != nil {
			return err
		}

		newPath := "/" + folder.Name
		if newParentID != nil {
			parent, err := lockFolder(tx, ownerID, *newParentID)
			if err != nil {
				return err
			}
			newPath = parent.Path + "/" + folder.Name
		}

		if err := tx.Model(&FolderPO{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"parent_id": newParentID, "path": newPath}).Error; err != nil {
			return err
		}
		return cascadePath(tx, ownerID, folder.Path, newPath)
	})
}

func (r *FolderRepo) SoftDelete(ctx context.Context, ownerID, id int64) error {
	result := r.db.GetDBFromContext(ctx).
		Model(&FolderPO{}).
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		Update("deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrFolderNotFound)
	}
	return nil
}

func (r *FolderRepo) CountLiveEntries(ctx context.Context, ownerID, folderID int64) (int64, error) {
	var count int64
	err := r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("owner_id = ? AND folder_id = ? AND deleted = false", ownerID, folderID).
		Count(&count).Error
	return count, err
}

func lockFolder(tx *gorm.DB, ownerID, id int64) (*FolderPO, error) {
	var po FolderPO
	err := tx.
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.New(apperrors.ErrFolderNotFound)
		}
		return nil, err
	}
	return &po, nil
}

// cascadePath rewrites the path prefix of every descendant
func cascadePath(tx *gorm.DB, ownerID int64, oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	return tx.Model(&FolderPO{}).
		Where("owner_id = ? AND path LIKE ?", ownerID, oldPath+"/%").
		Update("path", gorm.Expr("? || substring(path from ?)", newPath, len(oldPath)+1)).Error
}

func replaceLastSegment(path, name string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i+1] + name
		}
	}
	return "/" + name
}

func toFolderPO(f *biz.Folder) *FolderPO {
	return &FolderPO{
		ID:        f.ID,
		OwnerID:   f.OwnerID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		Path:      f.Path,
		Deleted:   f.Deleted,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func toFolder(po *FolderPO) *biz.Folder {
	return &biz.Folder{
		ID:        po.ID,
		OwnerID:   po.OwnerID,
		Name:      po.Name,
		ParentID:  po.ParentID,
		Path:      po.Path,
		Deleted:   po.Deleted,
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}
}
