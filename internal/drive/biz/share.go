package biz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Access kinds a share link can grant
const (
	AccessView     = "view"
	AccessPreview  = "preview"
	AccessDownload = "download"
)

const shareTokenBytes = 32

// ShareLink grants scoped access to one catalog entry
type ShareLink struct {
	ID           int64
	OwnerID      int64
	FileID       int64
	Token        string
	Name         string
	Description  string
	PasswordHash string
	ExpiresAt    *time.Time
	MaxViews     int
	MaxDownloads int
	Views        int
	Downloads    int
	CanView      bool
	CanPreview   bool
	CanDownload  bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the link's expiry has passed
func (s *ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// ShareRepo persists share links. GetByToken returns (nil, nil) for an
// unknown token. The increment methods are conditional updates that
// fail the guard, returning false, once the configured limit is
// reached; a zero limit never guards.
type ShareRepo interface {
	Create(ctx context.Context, link *ShareLink) error
	Update(ctx context.Context, link *ShareLink) error
	Delete(ctx context.Context, ownerID, id int64) error
	GetByID(ctx context.Context, ownerID, id int64) (*ShareLink, error)
	GetByToken(ctx context.Context, token string) (*ShareLink, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*ShareLink, error)
	IncrementViews(ctx context.Context, id int64) (bool, error)
	IncrementDownloads(ctx context.Context, id int64) (bool, error)
}

// CreateShareParams carries the owner-chosen link policy
type CreateShareParams struct {
	FileID       int64
	Name         string
	Description  string
	Password     string
	ExpiresAt    *time.Time
	MaxViews     int
	MaxDownloads int
	CanView      bool
	CanPreview   bool
	CanDownload  bool
}

// ShareUseCase creates, resolves and serves share links
type ShareUseCase struct {
	shares  ShareRepo
	catalog CatalogRepo
	storage *StorageUseCase
	cfg     *conf.StorageConfig
	logger  *logger.Logger
}

func NewShareUseCase(shares ShareRepo, catalog CatalogRepo, storage *StorageUseCase, cfg *conf.StorageConfig, log *logger.Logger) *ShareUseCase {
	return &ShareUseCase{
		shares:  shares,
		catalog: catalog,
		storage: storage,
		cfg:     cfg,
		logger:  log,
	}
}

// Create mints a link for one of the owner's live entries
func (uc *ShareUseCase) Create(ctx context.Context, ownerID int64, params *CreateShareParams) (*ShareLink, error) {
	if _, err := uc.catalog.GetByID(ctx, ownerID, params.FileID); err != nil {
		return nil, err
	}
	if !params.CanView && !params.CanPreview && !params.CanDownload {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "link must grant at least one access kind")
	}

	token, err := newShareToken()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	link := &ShareLink{
		OwnerID:      ownerID,
		FileID:       params.FileID,
		Token:        token,
		Name:         params.Name,
		Description:  params.Description,
		ExpiresAt:    params.ExpiresAt,
		MaxViews:     params.MaxViews,
		MaxDownloads: params.MaxDownloads,
		CanView:      params.CanView,
		CanPreview:   params.CanPreview,
		CanDownload:  params.CanDownload,
		Active:       true,
	}

	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
		}
		link.PasswordHash = string(hash)
	}

	if err := uc.shares.Create(ctx, link); err != nil {
		return nil, err
	}
	uc.logger.Info("share link created",
		zap.Int64("owner_id", ownerID),
		zap.Int64("file_id", params.FileID),
	)
	return link, nil
}

// List returns the owner's links
func (uc *ShareUseCase) List(ctx context.Context, ownerID int64) ([]*ShareLink, error) {
	return uc.shares.ListByOwner(ctx, ownerID)
}

// Revoke deactivates a link without deleting its history
func (uc *ShareUseCase) Revoke(ctx context.Context, ownerID, id int64) error {
	link, err := uc.shares.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	link.Active = false
	return uc.shares.Update(ctx, link)
}

// Delete removes a link entirely
func (uc *ShareUseCase) Delete(ctx context.Context, ownerID, id int64) error {
	return uc.shares.Delete(ctx, ownerID, id)
}

// Peek returns an active link by token without touching its counters,
// used where only the link's existence matters
func (uc *ShareUseCase) Peek(ctx context.Context, token string) (*ShareLink, error) {
	return uc.lookup(ctx, token)
}

// VerifyPassword checks a submitted password against the link's hash.
// It is the backing of the password-gate endpoint; the policy checks
// live in Resolve so a verified password alone grants nothing.
func (uc *ShareUseCase) VerifyPassword(ctx context.Context, token, password string) (*ShareLink, error) {
	link, err := uc.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.PasswordHash == "" {
		return link, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.New(apperrors.ErrShareDenied, "invalid password")
	}
	return link, nil
}

// Resolve validates a public access attempt against the link policy and
// returns the link and its live catalog entry. passwordVerified means
// the caller already passed the password gate this session; counters
// are bumped only after every other check clears, so a denied attempt
// never consumes a view or download.
func (uc *ShareUseCase) Resolve(ctx context.Context, token, password string, passwordVerified bool, kind string) (*ShareLink, *File, error) {
	link, err := uc.lookup(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	if link.Expired(time.Now()) {
		return nil, nil, apperrors.New(apperrors.ErrShareDenied, "link expired")
	}

	if link.PasswordHash != "" && !passwordVerified {
		if password == "" {
			return nil, nil, apperrors.New(apperrors.ErrSharePasswordRequired)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
			return nil, nil, apperrors.New(apperrors.ErrShareDenied, "invalid password")
		}
	}

	if !uc.allowed(link, kind) {
		return nil, nil, apperrors.New(apperrors.ErrShareDenied, "access kind not granted")
	}

	file, err := uc.catalog.GetByID(ctx, link.OwnerID, link.FileID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrFileNotFound) {
			return nil, nil, apperrors.New(apperrors.ErrShareNotFound, "shared file no longer exists")
		}
		return nil, nil, err
	}

	if err := uc.consume(ctx, link, kind); err != nil {
		return nil, nil, err
	}
	return link, file, nil
}

func (uc *ShareUseCase) lookup(ctx context.Context, token string) (*ShareLink, error) {
	link, err := uc.shares.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, apperrors.New(apperrors.ErrShareNotFound)
	}
	if !link.Active {
		return nil, apperrors.New(apperrors.ErrShareDenied, "link revoked")
	}
	return link, nil
}

func (uc *ShareUseCase) allowed(link *ShareLink, kind string) bool {
	switch kind {
	case AccessView:
		return link.CanView
	case AccessPreview:
		return link.CanPreview
	case AccessDownload:
		return link.CanDownload
	default:
		return false
	}
}

func (uc *ShareUseCase) consume(ctx context.Context, link *ShareLink, kind string) error {
	if kind == AccessDownload {
		ok, err := uc.shares.IncrementDownloads(ctx, link.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.New(apperrors.ErrShareDenied, "download limit reached")
		}
		return nil
	}

	ok, err := uc.shares.IncrementViews(ctx, link.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.ErrShareDenied, "view limit reached")
	}
	return nil
}

// Open materializes the shared file's bytes on the local disk and
// returns the path plus a cleanup to run after serving. Local entries
// are served in place after a roots check; remote entries are fetched
// to a temp file that the cleanup removes.
func (uc *ShareUseCase) Open(ctx context.Context, link *ShareLink, file *File) (string, func(), error) {
	if file.IsRemote() {
		path, err := uc.storage.Download(ctx, link.OwnerID, file.ID, "")
		if err != nil {
			return "", nil, err
		}
		cleanup := func() {
			if err := os.Remove(path); err != nil {
				uc.logger.Warn("failed to remove served temp file", zap.String("path", path), zap.Error(err))
			}
		}
		return path, cleanup, nil
	}

	path, err := uc.safeLocalPath(file.LocalPath)
	if err != nil {
		return "", nil, err
	}
	return path, func() {}, nil
}

// safeLocalPath canonicalizes a stored local path and confines it to
// the uploads and output roots
func (uc *ShareUseCase) safeLocalPath(stored string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(stored))
	if err != nil {
		return "", apperrors.New(apperrors.ErrShareDenied, "invalid file path")
	}
	for _, root := range []string{uc.cfg.UploadsRoot, uc.cfg.OutputRoot} {
		if root == "" {
			continue
		}
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", apperrors.New(apperrors.ErrShareDenied, "file path outside served roots")
}

func newShareToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
