package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/telegram"
)

type memScanJobRepo struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*ScanJob
}

func newMemScanJobRepo() *memScanJobRepo {
	return &memScanJobRepo{nextID: 1, jobs: make(map[int64]*ScanJob)}
}

func (r *memScanJobRepo) Create(ctx context.Context, job *ScanJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	cp.ID = r.nextID
	r.nextID++
	r.jobs[cp.ID] = &cp
	job.ID = cp.ID
	return nil
}

func (r *memScanJobRepo) Update(ctx context.Context, job *ScanJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return apperrors.New(apperrors.ErrInvalidParams, "unknown job")
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memScanJobRepo) GetByID(ctx context.Context, id int64) (*ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *memScanJobRepo) GetLatest(ctx context.Context, ownerID int64) (*ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *ScanJob
	for _, j := range r.jobs {
		if j.OwnerID == ownerID && (latest == nil || j.ID > latest.ID) {
			latest = j
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (p *capturePublisher) Publish(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) phases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Phase
	}
	return out
}

func newScanFixture(t *testing.T) (*ScanUseCase, *fakeRemote, *memCatalogRepo, *memScanJobRepo, *capturePublisher) {
	t.Helper()
	remote := newFakeRemote()
	catalog := newMemCatalogRepo()
	jobs := newMemScanJobRepo()
	progress := &capturePublisher{}
	cfg := &conf.TelegramConfig{ScanLimit: 500, CaptionBackfillLimit: 25}
	uc := NewScanUseCase(remote, catalog, jobs, nil, progress, cfg, testLogger(t))
	return uc, remote, catalog, jobs, progress
}

func waitForScan(t *testing.T, uc *ScanUseCase) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for uc.Running() {
		if time.Now().After(deadline) {
			t.Fatal("reconciliation did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScanRunReconcilesCatalog(t *testing.T) {
	uc, remote, catalog, jobs, progress := newScanFixture(t)
	ctx := context.Background()

	remote.scanFiles = []telegram.RemoteFile{
		{MessageID: 1, Filename: "a.pdf", Caption: "📁 a.pdf\n🆔 ID: 123", ObjectID: 10, AccessHash: 20, Reference: []byte{1}},
		{MessageID: 2, Filename: "b.jpg", Caption: "📁 b.jpg", IsPhoto: true, Reference: []byte{2}},
		{MessageID: 3, Filename: "test_run.log", Caption: "📁 test_run.log"},
	}

	job, err := uc.Start(ctx, 1)
	require.NoError(t, err)
	waitForScan(t, uc)

	final, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)

	live, err := catalog.ListLiveAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, live, 2)

	_, report, err := uc.Status(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.TotalRemote)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 0, report.Removed)

	phases := progress.phases()
	assert.Contains(t, phases, PhaseConnecting)
	assert.Contains(t, phases, PhaseScanning)
	assert.Contains(t, phases, PhaseSaving)
	assert.Equal(t, PhaseCompleted, phases[len(phases)-1])
}

func TestScanBackfillsMissingCaptionIDs(t *testing.T) {
	uc, remote, _, _, _ := newScanFixture(t)
	ctx := context.Background()

	remote.scanFiles = []telegram.RemoteFile{
		{MessageID: 7, Filename: "no-id.txt", Caption: "📁 no-id.txt", Reference: []byte{1}},
		{MessageID: 8, Filename: "has-id.txt", Caption: "📁 has-id.txt\n🆔 ID: 555", Reference: []byte{2}},
	}

	_, err := uc.Start(ctx, 1)
	require.NoError(t, err)
	waitForScan(t, uc)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	require.Len(t, remote.editedCaptions, 1)
	assert.Contains(t, remote.editedCaptions[7], "🆔 ID: ")
	assert.Contains(t, remote.editedCaptions[7], "no-id.txt")
}

func TestScanSecondStartRejected(t *testing.T) {
	uc, remote, _, _, _ := newScanFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	remote.scanBlock = release

	_, err := uc.Start(ctx, 1)
	require.NoError(t, err)

	_, err = uc.Start(ctx, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrScanBusy))

	close(release)
	waitForScan(t, uc)
}

func TestScanFailureRecordsError(t *testing.T) {
	uc, remote, _, jobs, progress := newScanFixture(t)
	ctx := context.Background()

	remote.scanErr = apperrors.New(apperrors.ErrNotAuthenticated)

	job, err := uc.Start(ctx, 1)
	require.NoError(t, err)
	waitForScan(t, uc)

	final, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusFailed, final.Status)
	assert.NotEmpty(t, final.ErrorMessage)

	phases := progress.phases()
	assert.Equal(t, PhaseError, phases[len(phases)-1])
}

func TestScanCancelMarksJobCancelled(t *testing.T) {
	uc, remote, _, jobs, _ := newScanFixture(t)
	ctx := context.Background()

	release := make(chan struct{})
	remote.scanBlock = release

	job, err := uc.Start(ctx, 1)
	require.NoError(t, err)

	require.True(t, uc.Cancel())
	close(release)
	waitForScan(t, uc)

	final, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCancelled, final.Status)
}

func TestScanPurgesSoftDeletedRows(t *testing.T) {
	uc, remote, catalog, jobs, _ := newScanFixture(t)
	ctx := context.Background()

	tombstone := &File{
		OwnerID:         1,
		Filename:        "report.pdf",
		Size:            10,
		MIME:            "application/pdf",
		StorageType:     StorageRemote,
		RemoteMessageID: 100,
		RemoteChannel:   SavedMessagesChannel,
		RemoteChannelID: SavedMessagesPeer,
		UniqueID:        777,
	}
	require.NoError(t, catalog.Insert(ctx, tombstone))
	require.NoError(t, catalog.SoftDelete(ctx, 1, tombstone.ID))

	// the remote message outlives the local soft delete and carries the
	// same unique id in its caption
	remote.scanFiles = []telegram.RemoteFile{
		{MessageID: 100, Filename: "report.pdf", Caption: "📁 report.pdf\n🆔 ID: 777", ObjectID: 10, AccessHash: 20, Reference: []byte{1}},
	}

	job, err := uc.Start(ctx, 1)
	require.NoError(t, err)
	waitForScan(t, uc)

	final, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCompleted, final.Status)

	live, err := catalog.ListLiveAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, int64(777), live[0].UniqueID)
	assert.NotEqual(t, tombstone.ID, live[0].ID)

	// the tombstone itself is gone, not just hidden
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	assert.Len(t, catalog.files, 1)
}

func TestScanStatusReportsLiveProgress(t *testing.T) {
	uc, remote, _, _, _ := newScanFixture(t)
	ctx := context.Background()

	remote.scanFiles = []telegram.RemoteFile{
		{MessageID: 1, Filename: "a.pdf", Caption: "📁 a.pdf\n🆔 ID: 1", Reference: []byte{1}},
		{MessageID: 2, Filename: "b.pdf", Caption: "📁 b.pdf\n🆔 ID: 2", Reference: []byte{2}},
	}
	release := make(chan struct{})
	remote.scanBlock = release

	_, err := uc.Start(ctx, 1)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	var job *ScanJob
	for {
		job, _, err = uc.Status(ctx, 1)
		require.NoError(t, err)
		if job != nil && job.TotalMessages == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("status never reported scanner progress")
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, ScanStatusRunning, job.Status)
	assert.Equal(t, 2, job.MessagesScanned)
	assert.Equal(t, 2, job.FilesFound)

	close(release)
	waitForScan(t, uc)

	job, report, err := uc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCompleted, job.Status)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.TotalRemote)
}
