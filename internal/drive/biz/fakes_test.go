package biz

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/telegram"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{
		Level:  "debug",
		Format: "console",
		Output: "console",
	})
	require.NoError(t, err)
	return log
}

// memCatalogRepo is an in-memory CatalogRepo for use-case tests
type memCatalogRepo struct {
	mu     sync.Mutex
	nextID int64
	files  map[int64]*File
}

func newMemCatalogRepo() *memCatalogRepo {
	return &memCatalogRepo{nextID: 1, files: make(map[int64]*File)}
}

func (r *memCatalogRepo) Insert(ctx context.Context, file *File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// the unique index on teledrive_unique_id covers tombstones too
	if file.UniqueID != 0 {
		for _, f := range r.files {
			if f.UniqueID == file.UniqueID {
				return apperrors.New(apperrors.ErrIntegrityViolation, "duplicate unique id")
			}
		}
	}
	cp := *file
	cp.ID = r.nextID
	r.nextID++
	r.files[cp.ID] = &cp
	file.ID = cp.ID
	return nil
}

func (r *memCatalogRepo) Update(ctx context.Context, file *File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[file.ID]; !ok {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	cp := *file
	r.files[file.ID] = &cp
	return nil
}

func (r *memCatalogRepo) SoftDelete(ctx context.Context, ownerID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	f.Deleted = true
	return nil
}

func (r *memCatalogRepo) HardDelete(ctx context.Context, ownerID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

func (r *memCatalogRepo) Rename(ctx context.Context, ownerID, id int64, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	f.Filename = newName
	return nil
}

func (r *memCatalogRepo) Move(ctx context.Context, ownerID, id int64, folderID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	f.FolderID = folderID
	return nil
}

func (r *memCatalogRepo) SetRemoteReference(ctx context.Context, id int64, reference []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	f.RemoteReference = reference
	return nil
}

func (r *memCatalogRepo) GetByID(ctx context.Context, ownerID, id int64) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.OwnerID != ownerID || f.Deleted {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	cp := *f
	return &cp, nil
}

func (r *memCatalogRepo) ListLive(ctx context.Context, ownerID int64, page, perPage int) ([]*File, int64, error) {
	all, err := r.ListLiveAll(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *memCatalogRepo) ListLiveAll(ctx context.Context, ownerID int64) ([]*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*File
	for _, f := range r.files {
		if f.OwnerID == ownerID && !f.Deleted {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCatalogRepo) FindByMessageID(ctx context.Context, ownerID int64, messageID int) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.OwnerID == ownerID && f.RemoteMessageID == messageID && !f.Deleted {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memCatalogRepo) FindByUniqueID(ctx context.Context, uniqueID int64) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.UniqueID == uniqueID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memCatalogRepo) ApplyReconcile(ctx context.Context, ownerID int64, change *ReconcileChange) error {
	r.mu.Lock()
	for id, f := range r.files {
		if f.OwnerID == ownerID && f.Deleted {
			delete(r.files, id)
		}
	}
	r.mu.Unlock()
	for _, id := range change.HardDeleteIDs {
		if err := r.HardDelete(ctx, ownerID, id); err != nil {
			return err
		}
	}
	for _, f := range change.Updates {
		if err := r.Update(ctx, f); err != nil {
			return err
		}
	}
	for _, f := range change.Inserts {
		if err := r.Insert(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// memShareRepo is an in-memory ShareRepo
type memShareRepo struct {
	mu     sync.Mutex
	nextID int64
	links  map[int64]*ShareLink
}

func newMemShareRepo() *memShareRepo {
	return &memShareRepo{nextID: 1, links: make(map[int64]*ShareLink)}
}

func (r *memShareRepo) Create(ctx context.Context, link *ShareLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	cp.ID = r.nextID
	r.nextID++
	r.links[cp.ID] = &cp
	link.ID = cp.ID
	return nil
}

func (r *memShareRepo) Update(ctx context.Context, link *ShareLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.ID]; !ok {
		return apperrors.New(apperrors.ErrShareNotFound)
	}
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *memShareRepo) Delete(ctx context.Context, ownerID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.OwnerID != ownerID {
		return apperrors.New(apperrors.ErrShareNotFound)
	}
	delete(r.links, id)
	return nil
}

func (r *memShareRepo) GetByID(ctx context.Context, ownerID, id int64) (*ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.OwnerID != ownerID {
		return nil, apperrors.New(apperrors.ErrShareNotFound)
	}
	cp := *l
	return &cp, nil
}

func (r *memShareRepo) GetByToken(ctx context.Context, token string) (*ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memShareRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ShareLink
	for _, l := range r.links {
		if l.OwnerID == ownerID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memShareRepo) IncrementViews(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return false, nil
	}
	if l.MaxViews > 0 && l.Views >= l.MaxViews {
		return false, nil
	}
	l.Views++
	return true, nil
}

func (r *memShareRepo) IncrementDownloads(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return false, nil
	}
	if l.MaxDownloads > 0 && l.Downloads >= l.MaxDownloads {
		return false, nil
	}
	l.Downloads++
	return true, nil
}

// fakeRemote scripts the RemoteStore for storage and scan tests
type fakeRemote struct {
	mu sync.Mutex

	uploadResult *telegram.UploadResult
	uploadErr    error
	uploadCalls  int

	downloadErrs  []error
	downloadCalls int
	refreshed     []byte

	scanFiles []telegram.RemoteFile
	scanErr   error
	scanBlock chan struct{}

	editedCaptions map[int]string
	deletedIDs     []int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{editedCaptions: make(map[int]string)}
}

func (f *fakeRemote) UploadFile(ctx context.Context, path, filename, mime string, uniqueID int64) (*telegram.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadResult, nil
}

func (f *fakeRemote) DownloadFile(ctx context.Context, src telegram.Source, outPath string, onRefresh telegram.RefreshFunc) error {
	f.mu.Lock()
	f.downloadCalls++
	call := f.downloadCalls
	f.mu.Unlock()

	if call <= len(f.downloadErrs) {
		err := f.downloadErrs[call-1]
		if err != nil && apperrors.Is(err, apperrors.ErrReferenceExpired) && onRefresh != nil {
			// simulate the refresh-then-retry path of the real downloader
			fresh := &telegram.RemoteFile{MessageID: src.MessageID, Reference: f.refreshed}
			if rerr := onRefresh(ctx, fresh); rerr != nil {
				return rerr
			}
			return nil
		}
		return err
	}
	return nil
}

func (f *fakeRemote) Scan(ctx context.Context, limit int, progress telegram.ProgressFunc) ([]telegram.RemoteFile, error) {
	if progress != nil {
		progress(telegram.ScanProgress{
			Current:    len(f.scanFiles),
			Total:      len(f.scanFiles),
			FilesFound: len(f.scanFiles),
		})
	}
	if f.scanBlock != nil {
		select {
		case <-f.scanBlock:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.scanFiles, nil
}

func (f *fakeRemote) EditCaption(ctx context.Context, messageID int, newCaption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editedCaptions[messageID] = newCaption
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}
