package biz

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
)

// Folder is one node of the folder tree. Path is the materialized
// '/'-joined ancestor chain and always matches what ParentID implies.
type Folder struct {
	ID        int64
	OwnerID   int64
	Name      string
	ParentID  *int64
	Path      string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FolderRepo is the folder persistence interface. Rename and Move
// recompute the path and cascade it to every descendant in the same
// transaction.
type FolderRepo interface {
	Create(ctx context.Context, folder *Folder) error
	GetByID(ctx context.Context, ownerID, id int64) (*Folder, error)
	ListByParent(ctx context.Context, ownerID int64, parentID *int64) ([]*Folder, error)
	Rename(ctx context.Context, ownerID, id int64, newName string) error
	Move(ctx context.Context, ownerID, id int64, newParentID *int64) error
	SoftDelete(ctx context.Context, ownerID, id int64) error
	CountLiveEntries(ctx context.Context, ownerID, folderID int64) (int64, error)
}

// FolderUseCase holds folder tree operations
type FolderUseCase struct {
	repo    FolderRepo
	catalog CatalogRepo
	cache   ListingCache
}

// NewFolderUseCase creates the use case
func NewFolderUseCase(repo FolderRepo, catalog CatalogRepo, cache ListingCache) *FolderUseCase {
	return &FolderUseCase{repo: repo, catalog: catalog, cache: cache}
}

func validFolderName(name string) error {
	if name == "" || len(name) > 255 {
		return apperrors.New(apperrors.ErrInvalidParams, "folder name must be 1-255 characters")
	}
	if strings.ContainsAny(name, "/\\") {
		return apperrors.New(apperrors.ErrInvalidParams, "folder name must not contain path separators")
	}
	return nil
}

// Create adds a folder under parentID (nil for root)
func (uc *FolderUseCase) Create(ctx context.Context, ownerID int64, name string, parentID *int64) (*Folder, error) {
	if err := validFolderName(name); err != nil {
		return nil, err
	}

	folder := &Folder{
		OwnerID:  ownerID,
		Name:     name,
		ParentID: parentID,
	}
	if parentID != nil {
		parent, err := uc.repo.GetByID(ctx, ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		folder.Path = parent.Path + "/" + name
	} else {
		folder.Path = "/" + name
	}

	if err := uc.repo.Create(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// Get returns one folder
func (uc *FolderUseCase) Get(ctx context.Context, ownerID, id int64) (*Folder, error) {
	return uc.repo.GetByID(ctx, ownerID, id)
}

// List returns the children of a parent (nil for root)
func (uc *FolderUseCase) List(ctx context.Context, ownerID int64, parentID *int64) ([]*Folder, error) {
	return uc.repo.ListByParent(ctx, ownerID, parentID)
}

// Rename changes the folder name, cascading the new path to descendants
func (uc *FolderUseCase) Rename(ctx context.Context, ownerID, id int64, newName string) error {
	if err := validFolderName(newName); err != nil {
		return err
	}
	return uc.repo.Rename(ctx, ownerID, id, newName)
}

// Move reparents the folder, cascading the new path to descendants. A
// folder cannot move under itself or one of its descendants.
func (uc *FolderUseCase) Move(ctx context.Context, ownerID, id int64, newParentID *int64) error {
	if newParentID != nil {
		if *newParentID == id {
			return apperrors.New(apperrors.ErrInvalidParams, "folder cannot be its own parent")
		}
		folder, err := uc.repo.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		target, err := uc.repo.GetByID(ctx, ownerID, *newParentID)
		if err != nil {
			return err
		}
		if strings.HasPrefix(target.Path+"/", folder.Path+"/") {
			return apperrors.New(apperrors.ErrInvalidParams, "folder cannot move under its own descendant")
		}
	}
	return uc.repo.Move(ctx, ownerID, id, newParentID)
}

// Delete tombstones an empty folder. Folders holding live entries refuse.
func (uc *FolderUseCase) Delete(ctx context.Context, ownerID, id int64) error {
	count, err := uc.repo.CountLiveEntries(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperrors.New(apperrors.ErrFolderNotEmpty)
	}

	children, err := uc.repo.ListByParent(ctx, ownerID, &id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return apperrors.New(apperrors.ErrFolderNotEmpty, "folder has subfolders")
	}

	if err := uc.repo.SoftDelete(ctx, ownerID, id); err != nil {
		return err
	}
	if uc.cache != nil {
		uc.cache.InvalidateOwner(ctx, ownerID)
	}
	return nil
}
