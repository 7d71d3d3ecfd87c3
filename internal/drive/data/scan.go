package data

import (
	"context"
	"time"

	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/database"
)

// ScanJobPO represents the database model of a reconciliation run
type ScanJobPO struct {
	ID              int64  `gorm:"primarykey"`
	OwnerID         int64  `gorm:"not null;index"`
	Channel         string `gorm:"size:64;not null;default:'me'"`
	Status          string `gorm:"size:16;not null;default:'pending'"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	TotalMessages   int    `gorm:"not null;default:0"`
	MessagesScanned int    `gorm:"not null;default:0"`
	FilesFound      int    `gorm:"not null;default:0"`
	ErrorMessage    string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ScanJobPO) TableName() string {
	return "scan_jobs"
}

// ScanJobRepo implements biz.ScanJobRepo on postgres
type ScanJobRepo struct {
	db *database.DB
}

func NewScanJobRepo(db *database.DB) biz.ScanJobRepo {
	return &ScanJobRepo{db: db}
}

func (r *ScanJobRepo) Create(ctx context.Context, job *biz.ScanJob) error {
	po := toScanJobPO(job)
	if err := r.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return err
	}
	job.ID = po.ID
	job.CreatedAt = po.CreatedAt
	job.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *ScanJobRepo) Update(ctx context.Context, job *biz.ScanJob) error {
	return r.db.GetDBFromContext(ctx).
		Model(&ScanJobPO{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":           job.Status,
			"started_at":       job.StartedAt,
			"completed_at":     job.CompletedAt,
			"total_messages":   job.TotalMessages,
			"messages_scanned": job.MessagesScanned,
			"files_found":      job.FilesFound,
			"error_message":    job.ErrorMessage,
		}).Error
}

func (r *ScanJobRepo) GetByID(ctx context.Context, id int64) (*biz.ScanJob, error) {
	var po ScanJobPO
	err := r.db.GetDBFromContext(ctx).
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toScanJob(&po), nil
}

func (r *ScanJobRepo) GetLatest(ctx context.Context, ownerID int64) (*biz.ScanJob, error) {
	var po ScanJobPO
	err := r.db.GetDBFromContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id DESC").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toScanJob(&po), nil
}

func toScanJobPO(j *biz.ScanJob) *ScanJobPO {
	return &ScanJobPO{
		ID:              j.ID,
		OwnerID:         j.OwnerID,
		Channel:         j.Channel,
		Status:          j.Status,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		TotalMessages:   j.TotalMessages,
		MessagesScanned: j.MessagesScanned,
		FilesFound:      j.FilesFound,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

func toScanJob(po *ScanJobPO) *biz.ScanJob {
	return &biz.ScanJob{
		ID:              po.ID,
		OwnerID:         po.OwnerID,
		Channel:         po.Channel,
		Status:          po.Status,
		StartedAt:       po.StartedAt,
		CompletedAt:     po.CompletedAt,
		TotalMessages:   po.TotalMessages,
		MessagesScanned: po.MessagesScanned,
		FilesFound:      po.FilesFound,
		ErrorMessage:    po.ErrorMessage,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}
}
