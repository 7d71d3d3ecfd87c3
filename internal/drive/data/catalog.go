package data

import (
	"context"
	"time"

	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/database"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"gorm.io/gorm"
)

// FilePO represents the database model of a catalog entry
type FilePO struct {
	ID               int64  `gorm:"primarykey"`
	OwnerID          int64  `gorm:"not null;index:idx_files_owner_deleted,priority:1"`
	FolderID         *int64 `gorm:"index"`
	Filename         string `gorm:"size:255;not null"`
	OriginalFilename string `gorm:"size:255;not null"`
	Size             int64  `gorm:"not null;default:0"`
	MimeType         string `gorm:"size:127"`
	StorageType      string `gorm:"size:16;not null;default:'local'"`
	LocalPath        string `gorm:"size:512"`

	RemoteMessageID     int    `gorm:"index:idx_files_remote_message_id"`
	RemoteChannel       string `gorm:"size:64"`
	RemoteChannelID     string `gorm:"size:64"`
	RemoteObjectID      string `gorm:"size:64"`
	RemoteAccessHash    string `gorm:"size:64"`
	RemoteFileReference []byte
	IsPhoto             bool `gorm:"not null;default:false"`

	// nullable so absent markers never collide on the unique index
	TeledriveUniqueID *int64 `gorm:"uniqueIndex:idx_files_unique_id,where:teledrive_unique_id IS NOT NULL"`

	Deleted   bool      `gorm:"not null;default:false;index:idx_files_owner_deleted,priority:2"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FilePO) TableName() string {
	return "files"
}

// CatalogRepo implements biz.CatalogRepo on postgres
type CatalogRepo struct {
	db *database.DB
}

func NewCatalogRepo(db *database.DB) biz.CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) Insert(ctx context.Context, file *biz.File) error {
	po := toFilePO(file)
	if err := r.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return err
	}
	file.ID = po.ID
	file.CreatedAt = po.CreatedAt
	file.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *CatalogRepo) Update(ctx context.Context, file *biz.File) error {
	po := toFilePO(file)
	return r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("id = ? AND owner_id = ?", file.ID, file.OwnerID).
		Updates(po).Error
}

func (r *CatalogRepo) SoftDelete(ctx context.Context, ownerID, id int64) error {
	result := r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		Update("deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	return nil
}

func (r *CatalogRepo) HardDelete(ctx context.Context, ownerID, id int64) error {
	return r.db.GetDBFromContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&FilePO{}).Error
}

func (r *CatalogRepo) Rename(ctx context.Context, ownerID, id int64, newName string) error {
	result := r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		Update("filename", newName)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	return nil
}

func (r *CatalogRepo) Move(ctx context.Context, ownerID, id int64, folderID *int64) error {
	result := r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		Update("folder_id", folderID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	return nil
}

func (r *CatalogRepo) SetRemoteReference(ctx context.Context, id int64, reference []byte) error {
	return r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("id = ?", id).
		Update("remote_file_reference", reference).Error
}

func (r *CatalogRepo) GetByID(ctx context.Context, ownerID, id int64) (*biz.File, error) {
	var po FilePO
	err := r.db.GetDBFromContext(ctx).
		Where("id = ? AND owner_id = ? AND deleted = false", id, ownerID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.New(apperrors.ErrFileNotFound)
		}
		return nil, err
	}
	return toFile(&po), nil
}

func (r *CatalogRepo) ListLive(ctx context.Context, ownerID int64, page, perPage int) ([]*biz.File, int64, error) {
	query := r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("owner_id = ? AND deleted = false", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pos []FilePO
	err := query.
		Scopes(database.Paginate(page, perPage), database.OrderBy("id", true)).
		Find(&pos).Error
	if err != nil {
		return nil, 0, err
	}

	files := make([]*biz.File, len(pos))
	for i := range pos {
		files[i] = toFile(&pos[i])
	}
	return files, total, nil
}

func (r *CatalogRepo) ListLiveAll(ctx context.Context, ownerID int64) ([]*biz.File, error) {
	var pos []FilePO
	err := r.db.GetDBFromContext(ctx).
		Where("owner_id = ? AND deleted = false", ownerID).
		Order("id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	files := make([]*biz.File, len(pos))
	for i := range pos {
		files[i] = toFile(&pos[i])
	}
	return files, nil
}

func (r *CatalogRepo) FindByMessageID(ctx context.Context, ownerID int64, messageID int) (*biz.File, error) {
	var po FilePO
	err := r.db.GetDBFromContext(ctx).
		Where("owner_id = ? AND remote_message_id = ? AND deleted = false", ownerID, messageID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toFile(&po), nil
}

func (r *CatalogRepo) FindByUniqueID(ctx context.Context, uniqueID int64) (*biz.File, error) {
	var po FilePO
	err := r.db.GetDBFromContext(ctx).
		Where("teledrive_unique_id = ?", uniqueID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toFile(&po), nil
}

// ApplyReconcile applies one reconciliation batch atomically, deletes
// first so freed filenames and unique ids never collide with inserts.
// Soft-deleted rows are purged unconditionally: the unique index on
// teledrive_unique_id still covers tombstones, so a lingering one would
// collide with the re-insert of its still-present remote message.
func (r *CatalogRepo) ApplyReconcile(ctx context.Context, ownerID int64, change *biz.ReconcileChange) error {
	return r.db.Transaction(ctx, func(txCtx context.Context, tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND deleted = true", ownerID).
			Delete(&FilePO{}).Error; err != nil {
			return err
		}
		if len(change.HardDeleteIDs) > 0 {
			if err := tx.Where("owner_id = ? AND id IN ?", ownerID, change.HardDeleteIDs).
				Delete(&FilePO{}).Error; err != nil {
				return err
			}
		}

		for _, file := range change.Updates {
			po := toFilePO(file)
			if err := tx.Model(&FilePO{}).
				Where("id = ? AND owner_id = ?", file.ID, ownerID).
				Updates(po).Error; err != nil {
				return err
			}
		}

		for _, file := range change.Inserts {
			po := toFilePO(file)
			if err := tx.Create(po).Error; err != nil {
				return err
			}
			file.ID = po.ID
		}
		return nil
	})
}

func toFilePO(f *biz.File) *FilePO {
	po := &FilePO{
		ID:                  f.ID,
		OwnerID:             f.OwnerID,
		FolderID:            f.FolderID,
		Filename:            f.Filename,
		OriginalFilename:    f.OriginalFilename,
		Size:                f.Size,
		MimeType:            f.MIME,
		StorageType:         f.StorageType,
		LocalPath:           f.LocalPath,
		RemoteMessageID:     f.RemoteMessageID,
		RemoteChannel:       f.RemoteChannel,
		RemoteChannelID:     f.RemoteChannelID,
		RemoteObjectID:      f.RemoteObjectID,
		RemoteAccessHash:    f.RemoteAccessHash,
		RemoteFileReference: f.RemoteReference,
		IsPhoto:             f.IsPhoto,
		Deleted:             f.Deleted,
		CreatedAt:           f.CreatedAt,
		UpdatedAt:           f.UpdatedAt,
	}
	if f.UniqueID != 0 {
		id := f.UniqueID
		po.TeledriveUniqueID = &id
	}
	return po
}

func toFile(po *FilePO) *biz.File {
	f := &biz.File{
		ID:               po.ID,
		OwnerID:          po.OwnerID,
		FolderID:         po.FolderID,
		Filename:         po.Filename,
		OriginalFilename: po.OriginalFilename,
		Size:             po.Size,
		MIME:             po.MimeType,
		StorageType:      po.StorageType,
		LocalPath:        po.LocalPath,
		RemoteMessageID:  po.RemoteMessageID,
		RemoteChannel:    po.RemoteChannel,
		RemoteChannelID:  po.RemoteChannelID,
		RemoteObjectID:   po.RemoteObjectID,
		RemoteAccessHash: po.RemoteAccessHash,
		RemoteReference:  po.RemoteFileReference,
		IsPhoto:          po.IsPhoto,
		Deleted:          po.Deleted,
		CreatedAt:        po.CreatedAt,
		UpdatedAt:        po.UpdatedAt,
	}
	if po.TeledriveUniqueID != nil {
		f.UniqueID = *po.TeledriveUniqueID
	}
	return f
}
