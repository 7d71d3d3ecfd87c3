package biz

import (
	"context"
	"time"

	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

// Storage types of a catalog entry
const (
	StorageLocal  = "local"
	StorageRemote = "remote"
)

// SavedMessagesChannel is the normalized remote channel name
const SavedMessagesChannel = "Saved Messages"

// SavedMessagesPeer is the channel id stored on remote entries; the
// remote side addresses Saved Messages as the self peer, so there is no
// separate numeric channel.
const SavedMessagesPeer = "me"

// File is a catalog entry, the durable record of one stored file
type File struct {
	ID               int64
	OwnerID          int64
	FolderID         *int64
	Filename         string
	OriginalFilename string
	Size             int64
	MIME             string
	StorageType      string
	LocalPath        string

	// remote identifiers, all populated together when StorageType is remote
	RemoteMessageID  int
	RemoteChannel    string
	RemoteChannelID  string
	RemoteObjectID   string
	RemoteAccessHash string
	RemoteReference  []byte
	IsPhoto          bool

	// durable out-of-band upload marker, 0 when absent
	UniqueID int64

	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRemote reports whether the entry lives in Saved Messages
func (f *File) IsRemote() bool {
	return f.StorageType == StorageRemote
}

// ValidateRemote checks the remote-identifier invariant
func (f *File) ValidateRemote() error {
	if f.StorageType != StorageRemote {
		return nil
	}
	if f.RemoteMessageID == 0 || f.RemoteChannel == "" || f.RemoteChannelID == "" ||
		f.RemoteObjectID == "" || f.RemoteAccessHash == "" || len(f.RemoteReference) == 0 {
		return apperrors.New(apperrors.ErrIntegrityViolation, "remote entry with missing remote identifiers")
	}
	return nil
}

// ReconcileChange is the transactional batch a reconciliation applies:
// deletes run before updates and inserts.
type ReconcileChange struct {
	HardDeleteIDs []int64
	Updates       []*File
	Inserts       []*File
}

// CatalogRepo is the narrow persistence interface of the catalog
type CatalogRepo interface {
	Insert(ctx context.Context, file *File) error
	Update(ctx context.Context, file *File) error
	SoftDelete(ctx context.Context, ownerID, id int64) error
	HardDelete(ctx context.Context, ownerID, id int64) error
	Rename(ctx context.Context, ownerID, id int64, newName string) error
	Move(ctx context.Context, ownerID, id int64, folderID *int64) error
	SetRemoteReference(ctx context.Context, id int64, reference []byte) error
	GetByID(ctx context.Context, ownerID, id int64) (*File, error)
	ListLive(ctx context.Context, ownerID int64, page, perPage int) ([]*File, int64, error)
	ListLiveAll(ctx context.Context, ownerID int64) ([]*File, error)
	FindByMessageID(ctx context.Context, ownerID int64, messageID int) (*File, error)
	FindByUniqueID(ctx context.Context, uniqueID int64) (*File, error)
	ApplyReconcile(ctx context.Context, ownerID int64, change *ReconcileChange) error
}

// ListingCache caches file listings per (owner, page, per_page). It is an
// optimization, never a source of truth.
type ListingCache interface {
	GetListing(ctx context.Context, ownerID int64, page, perPage int) ([]*File, int64, bool)
	PutListing(ctx context.Context, ownerID int64, page, perPage int, files []*File, total int64)
	InvalidateOwner(ctx context.Context, ownerID int64)
}

// CatalogUseCase holds the read/maintenance operations over the catalog
type CatalogUseCase struct {
	repo   CatalogRepo
	cache  ListingCache
	logger *logger.Logger
}

// NewCatalogUseCase creates the use case. cache may be nil.
func NewCatalogUseCase(repo CatalogRepo, cache ListingCache, log *logger.Logger) *CatalogUseCase {
	return &CatalogUseCase{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

// Get returns one live entry
func (uc *CatalogUseCase) Get(ctx context.Context, ownerID, id int64) (*File, error) {
	return uc.repo.GetByID(ctx, ownerID, id)
}

// List returns a page of live entries plus the live total
func (uc *CatalogUseCase) List(ctx context.Context, ownerID int64, page, perPage int) ([]*File, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	if uc.cache != nil {
		if files, total, ok := uc.cache.GetListing(ctx, ownerID, page, perPage); ok {
			return files, total, nil
		}
	}

	files, total, err := uc.repo.ListLive(ctx, ownerID, page, perPage)
	if err != nil {
		return nil, 0, err
	}

	if uc.cache != nil {
		uc.cache.PutListing(ctx, ownerID, page, perPage, files, total)
	}
	return files, total, nil
}

// Rename changes the display filename
func (uc *CatalogUseCase) Rename(ctx context.Context, ownerID, id int64, newName string) error {
	if newName == "" || len(newName) > 255 {
		return apperrors.New(apperrors.ErrInvalidParams, "filename must be 1-255 characters")
	}
	if err := uc.repo.Rename(ctx, ownerID, id, newName); err != nil {
		return err
	}
	uc.invalidate(ctx, ownerID)
	return nil
}

// Move reparents the entry in the folder tree
func (uc *CatalogUseCase) Move(ctx context.Context, ownerID, id int64, folderID *int64) error {
	if err := uc.repo.Move(ctx, ownerID, id, folderID); err != nil {
		return err
	}
	uc.invalidate(ctx, ownerID)
	return nil
}

// Delete tombstones the entry. User deletions are always soft; only the
// reconciler hard-deletes.
func (uc *CatalogUseCase) Delete(ctx context.Context, ownerID, id int64) error {
	if err := uc.repo.SoftDelete(ctx, ownerID, id); err != nil {
		return err
	}
	uc.invalidate(ctx, ownerID)
	return nil
}

func (uc *CatalogUseCase) invalidate(ctx context.Context, ownerID int64) {
	if uc.cache == nil {
		return
	}
	uc.cache.InvalidateOwner(ctx, ownerID)
	uc.logger.Debug("listing cache invalidated", zap.Int64("owner_id", ownerID))
}
