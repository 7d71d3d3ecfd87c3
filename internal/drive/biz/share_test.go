package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
)

func newShareFixture(t *testing.T) (*ShareUseCase, *memCatalogRepo, *memShareRepo) {
	t.Helper()
	catalog := newMemCatalogRepo()
	shares := newMemShareRepo()
	uc := NewShareUseCase(shares, catalog, nil, &conf.StorageConfig{}, testLogger(t))
	return uc, catalog, shares
}

func seedFile(t *testing.T, catalog *memCatalogRepo, ownerID int64, name string) *File {
	t.Helper()
	f := &File{
		OwnerID:     ownerID,
		Filename:    name,
		StorageType: StorageRemote,
	}
	require.NoError(t, catalog.Insert(context.Background(), f))
	return f
}

func TestShareCreateRequiresLiveFile(t *testing.T) {
	uc, _, _ := newShareFixture(t)

	_, err := uc.Create(context.Background(), 1, &CreateShareParams{FileID: 99, CanView: true})
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))
}

func TestShareCreateRejectsNoGrants(t *testing.T) {
	uc, catalog, _ := newShareFixture(t)
	f := seedFile(t, catalog, 1, "a.pdf")

	_, err := uc.Create(context.Background(), 1, &CreateShareParams{FileID: f.ID})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestSharePasswordAndDownloadLimit(t *testing.T) {
	uc, catalog, _ := newShareFixture(t)
	f := seedFile(t, catalog, 1, "a.pdf")

	link, err := uc.Create(context.Background(), 1, &CreateShareParams{
		FileID:       f.ID,
		Password:     "s3cret",
		MaxDownloads: 1,
		CanView:      true,
		CanDownload:  true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, link.Token)

	ctx := context.Background()

	// no password, not verified
	_, _, err = uc.Resolve(ctx, link.Token, "", false, AccessDownload)
	assert.True(t, apperrors.Is(err, apperrors.ErrSharePasswordRequired))

	// wrong password
	_, _, err = uc.Resolve(ctx, link.Token, "nope", false, AccessDownload)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareDenied))

	// password gate cleared separately
	_, err = uc.VerifyPassword(ctx, link.Token, "s3cret")
	require.NoError(t, err)

	// first download within the limit
	got, gotFile, err := uc.Resolve(ctx, link.Token, "", true, AccessDownload)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, "a.pdf", gotFile.Filename)

	// second download exceeds max_downloads
	_, _, err = uc.Resolve(ctx, link.Token, "", true, AccessDownload)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareDenied))
}

func TestShareResolveUnknownToken(t *testing.T) {
	uc, _, _ := newShareFixture(t)

	_, _, err := uc.Resolve(context.Background(), "no-such-token", "", false, AccessView)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareNotFound))
}

func TestShareResolveRevokedAndExpired(t *testing.T) {
	uc, catalog, _ := newShareFixture(t)
	f := seedFile(t, catalog, 1, "a.pdf")
	ctx := context.Background()

	link, err := uc.Create(ctx, 1, &CreateShareParams{FileID: f.ID, CanView: true})
	require.NoError(t, err)

	require.NoError(t, uc.Revoke(ctx, 1, link.ID))
	_, _, err = uc.Resolve(ctx, link.Token, "", false, AccessView)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareDenied))

	past := time.Now().Add(-time.Hour)
	expired, err := uc.Create(ctx, 1, &CreateShareParams{FileID: f.ID, CanView: true, ExpiresAt: &past})
	require.NoError(t, err)

	_, _, err = uc.Resolve(ctx, expired.Token, "", false, AccessView)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareDenied))
}

func TestShareResolveKindFlags(t *testing.T) {
	uc, catalog, _ := newShareFixture(t)
	f := seedFile(t, catalog, 1, "a.pdf")
	ctx := context.Background()

	link, err := uc.Create(ctx, 1, &CreateShareParams{FileID: f.ID, CanView: true})
	require.NoError(t, err)

	_, _, err = uc.Resolve(ctx, link.Token, "", false, AccessView)
	require.NoError(t, err)

	_, _, err = uc.Resolve(ctx, link.Token, "", false, AccessDownload)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareDenied))

	_, _, err = uc.Resolve(ctx, link.Token, "", false, AccessPreview)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareDenied))
}

func TestShareResolveDeadFile(t *testing.T) {
	uc, catalog, _ := newShareFixture(t)
	f := seedFile(t, catalog, 1, "a.pdf")
	ctx := context.Background()

	link, err := uc.Create(ctx, 1, &CreateShareParams{FileID: f.ID, CanView: true})
	require.NoError(t, err)

	require.NoError(t, catalog.SoftDelete(ctx, 1, f.ID))

	_, _, err = uc.Resolve(ctx, link.Token, "", false, AccessView)
	assert.True(t, apperrors.Is(err, apperrors.ErrShareNotFound))
}

func TestShareDeniedNeverConsumesCounter(t *testing.T) {
	uc, catalog, shares := newShareFixture(t)
	f := seedFile(t, catalog, 1, "a.pdf")
	ctx := context.Background()

	link, err := uc.Create(ctx, 1, &CreateShareParams{
		FileID:      f.ID,
		Password:    "pw",
		MaxViews:    5,
		CanView:     true,
		CanDownload: true,
	})
	require.NoError(t, err)

	_, _, err = uc.Resolve(ctx, link.Token, "wrong", false, AccessView)
	require.Error(t, err)

	stored, err := shares.GetByID(ctx, 1, link.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Views)
}

func TestShareCreateStoresMetadata(t *testing.T) {
	uc, catalog, shares := newShareFixture(t)
	f := seedFile(t, catalog, 1, "thesis.pdf")
	ctx := context.Background()

	link, err := uc.Create(ctx, 1, &CreateShareParams{
		FileID:      f.ID,
		Name:        "Thesis draft",
		Description: "review copy, comments welcome",
		CanView:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Thesis draft", link.Name)
	assert.Equal(t, "review copy, comments welcome", link.Description)

	stored, err := shares.GetByToken(ctx, link.Token)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Thesis draft", stored.Name)
	assert.Equal(t, "review copy, comments welcome", stored.Description)

	// the landing resolve surfaces the metadata
	resolved, _, err := uc.Resolve(ctx, link.Token, "", false, AccessView)
	require.NoError(t, err)
	assert.Equal(t, "Thesis draft", resolved.Name)
	assert.Equal(t, "review copy, comments welcome", resolved.Description)
}
