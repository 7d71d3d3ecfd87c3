package biz

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
)

// memFolderRepo is an in-memory FolderRepo with path cascade
type memFolderRepo struct {
	mu      sync.Mutex
	nextID  int64
	folders map[int64]*Folder
	catalog *memCatalogRepo
}

func newMemFolderRepo(catalog *memCatalogRepo) *memFolderRepo {
	return &memFolderRepo{nextID: 1, folders: make(map[int64]*Folder), catalog: catalog}
}

func (r *memFolderRepo) Create(ctx context.Context, folder *Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *folder
	cp.ID = r.nextID
	r.nextID++
	r.folders[cp.ID] = &cp
	folder.ID = cp.ID
	return nil
}

func (r *memFolderRepo) GetByID(ctx context.Context, ownerID, id int64) (*Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return nil, apperrors.New(apperrors.ErrFolderNotFound)
	}
	cp := *f
	return &cp, nil
}

func (r *memFolderRepo) ListByParent(ctx context.Context, ownerID int64, parentID *int64) ([]*Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Folder
	for _, f := range r.folders {
		if f.OwnerID != ownerID || f.Deleted {
			continue
		}
		if parentID == nil && f.ParentID == nil {
			cp := *f
			out = append(out, &cp)
		} else if parentID != nil && f.ParentID != nil && *f.ParentID == *parentID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memFolderRepo) Rename(ctx context.Context, ownerID, id int64, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return apperrors.New(apperrors.ErrFolderNotFound)
	}
	oldPath := f.Path
	idx := strings.LastIndex(oldPath, "/")
	newPath := oldPath[:idx+1] + newName
	f.Name = newName
	f.Path = newPath
	r.cascade(ownerID, oldPath, newPath)
	return nil
}

func (r *memFolderRepo) Move(ctx context.Context, ownerID, id int64, newParentID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return apperrors.New(apperrors.ErrFolderNotFound)
	}
	oldPath := f.Path
	newPath := "/" + f.Name
	if newParentID != nil {
		parent, ok := r.folders[*newParentID]
		if !ok {
			return apperrors.New(apperrors.ErrFolderNotFound)
		}
		newPath = parent.Path + "/" + f.Name
	}
	f.ParentID = newParentID
	f.Path = newPath
	r.cascade(ownerID, oldPath, newPath)
	return nil
}

func (r *memFolderRepo) SoftDelete(ctx context.Context, ownerID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return apperrors.New(apperrors.ErrFolderNotFound)
	}
	f.Deleted = true
	return nil
}

func (r *memFolderRepo) CountLiveEntries(ctx context.Context, ownerID, folderID int64) (int64, error) {
	files, err := r.catalog.ListLiveAll(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, f := range files {
		if f.FolderID != nil && *f.FolderID == folderID {
			count++
		}
	}
	return count, nil
}

func (r *memFolderRepo) cascade(ownerID int64, oldPath, newPath string) {
	for _, f := range r.folders {
		if f.OwnerID == ownerID && strings.HasPrefix(f.Path, oldPath+"/") {
			f.Path = newPath + f.Path[len(oldPath):]
		}
	}
}

func newFolderFixture(t *testing.T) (*FolderUseCase, *memFolderRepo, *memCatalogRepo) {
	t.Helper()
	catalog := newMemCatalogRepo()
	repo := newMemFolderRepo(catalog)
	return NewFolderUseCase(repo, catalog, nil), repo, catalog
}

func TestFolderCreateBuildsPath(t *testing.T) {
	uc, _, _ := newFolderFixture(t)
	ctx := context.Background()

	root, err := uc.Create(ctx, 1, "docs", nil)
	require.NoError(t, err)
	assert.Equal(t, "/docs", root.Path)

	child, err := uc.Create(ctx, 1, "2026", &root.ID)
	require.NoError(t, err)
	assert.Equal(t, "/docs/2026", child.Path)
}

func TestFolderCreateRejectsBadNames(t *testing.T) {
	uc, _, _ := newFolderFixture(t)
	ctx := context.Background()

	for _, name := range []string{"", "a/b", "a\\b", strings.Repeat("x", 256)} {
		_, err := uc.Create(ctx, 1, name, nil)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams), "name %q", name)
	}
}

func TestFolderRenameCascadesPath(t *testing.T) {
	uc, repo, _ := newFolderFixture(t)
	ctx := context.Background()

	root, err := uc.Create(ctx, 1, "docs", nil)
	require.NoError(t, err)
	child, err := uc.Create(ctx, 1, "inner", &root.ID)
	require.NoError(t, err)

	require.NoError(t, uc.Rename(ctx, 1, root.ID, "papers"))

	got, err := repo.GetByID(ctx, 1, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "/papers/inner", got.Path)
}

func TestFolderMoveRejectsCycles(t *testing.T) {
	uc, _, _ := newFolderFixture(t)
	ctx := context.Background()

	a, err := uc.Create(ctx, 1, "a", nil)
	require.NoError(t, err)
	b, err := uc.Create(ctx, 1, "b", &a.ID)
	require.NoError(t, err)

	// self-parent
	err = uc.Move(ctx, 1, a.ID, &a.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))

	// under own descendant
	err = uc.Move(ctx, 1, a.ID, &b.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestFolderDeleteRequiresEmpty(t *testing.T) {
	uc, _, catalog := newFolderFixture(t)
	ctx := context.Background()

	folder, err := uc.Create(ctx, 1, "inbox", nil)
	require.NoError(t, err)

	file := &File{OwnerID: 1, Filename: "f.txt", FolderID: &folder.ID, StorageType: StorageLocal}
	require.NoError(t, catalog.Insert(ctx, file))

	err = uc.Delete(ctx, 1, folder.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrFolderNotEmpty))

	require.NoError(t, catalog.SoftDelete(ctx, 1, file.ID))
	require.NoError(t, uc.Delete(ctx, 1, folder.ID))
}

func TestFolderDeleteRequiresNoChildren(t *testing.T) {
	uc, _, _ := newFolderFixture(t)
	ctx := context.Background()

	parent, err := uc.Create(ctx, 1, "outer", nil)
	require.NoError(t, err)
	_, err = uc.Create(ctx, 1, "inner", &parent.ID)
	require.NoError(t, err)

	err = uc.Delete(ctx, 1, parent.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrFolderNotEmpty))
}
