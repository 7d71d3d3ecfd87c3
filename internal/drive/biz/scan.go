package biz

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teledrive-vn/teledrive/internal/conf"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/telegram"
	"github.com/teledrive-vn/teledrive/internal/telegram/caption"
	"go.uber.org/zap"
)

// Scan job statuses
const (
	ScanStatusPending   = "pending"
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
	ScanStatusCancelled = "cancelled"
)

// Removal reasons in a reconciliation report
const (
	ReasonNoMessageID = "no_message_id"
	ReasonNotInRemote = "not_in_remote"
	ReasonDuplicate   = "duplicate"
)

// testFileMarkers excludes demo noise from the working catalog
var testFileMarkers = []string{"upload_test", "api_test", "final_test", "test", "debug"}

// ScanJob records one reconciliation run
type ScanJob struct {
	ID              int64
	OwnerID         int64
	Channel         string
	Status          string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	TotalMessages   int
	MessagesScanned int
	FilesFound      int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScanJobRepo persists scan jobs
type ScanJobRepo interface {
	Create(ctx context.Context, job *ScanJob) error
	Update(ctx context.Context, job *ScanJob) error
	GetByID(ctx context.Context, id int64) (*ScanJob, error)
	GetLatest(ctx context.Context, ownerID int64) (*ScanJob, error)
}

// RemovedFile is one reconciliation casualty
type RemovedFile struct {
	Filename  string `json:"filename"`
	MessageID int    `json:"message_id"`
	Reason    string `json:"reason"`
}

// ReconcileReport summarizes one reconciliation
type ReconcileReport struct {
	TotalRemote  int           `json:"total_remote"`
	Added        int           `json:"added"`
	Removed      int           `json:"removed"`
	RemovedFiles []RemovedFile `json:"removed_files"`
}

// ScanUseCase reconciles the catalog against the authoritative Saved
// Messages snapshot. One run at a time per process.
type ScanUseCase struct {
	remote   RemoteStore
	catalog  CatalogRepo
	jobs     ScanJobRepo
	cache    ListingCache
	progress ProgressPublisher
	cfg      *conf.TelegramConfig
	logger   *logger.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	current    *ScanJob
	lastReport *ReconcileReport
}

// NewScanUseCase creates the use case. cache and progress may be nil.
func NewScanUseCase(remote RemoteStore, catalog CatalogRepo, jobs ScanJobRepo, cache ListingCache, progress ProgressPublisher, cfg *conf.TelegramConfig, log *logger.Logger) *ScanUseCase {
	if progress == nil {
		progress = nopPublisher{}
	}
	return &ScanUseCase{
		remote:   remote,
		catalog:  catalog,
		jobs:     jobs,
		cache:    cache,
		progress: progress,
		cfg:      cfg,
		logger:   log,
	}
}

// Start launches a reconciliation in the background. A second start
// while one runs is rejected with ScanBusy.
func (uc *ScanUseCase) Start(ctx context.Context, ownerID int64) (*ScanJob, error) {
	uc.mu.Lock()
	if uc.running {
		uc.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrScanBusy)
	}
	uc.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	uc.cancel = cancel
	uc.mu.Unlock()

	job := &ScanJob{
		OwnerID: ownerID,
		Channel: SavedMessagesPeer,
		Status:  ScanStatusPending,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		cancel()
		uc.finish()
		return nil, err
	}

	uc.mu.Lock()
	uc.current = job
	uc.mu.Unlock()

	go uc.run(runCtx, job)
	return job, nil
}

// Cancel requests cancellation of the running reconciliation
func (uc *ScanUseCase) Cancel() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if !uc.running || uc.cancel == nil {
		return false
	}
	uc.cancel()
	return true
}

// Running reports whether a reconciliation is in flight
func (uc *ScanUseCase) Running() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.running
}

// Status returns the latest job and the last completed report. While a
// run is in flight the in-memory job is served, so the progress counters
// move without waiting for a terminal persist.
func (uc *ScanUseCase) Status(ctx context.Context, ownerID int64) (*ScanJob, *ReconcileReport, error) {
	uc.mu.Lock()
	if uc.running && uc.current != nil && uc.current.OwnerID == ownerID {
		snapshot := *uc.current
		report := uc.lastReport
		uc.mu.Unlock()
		return &snapshot, report, nil
	}
	report := uc.lastReport
	uc.mu.Unlock()

	job, err := uc.jobs.GetLatest(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return job, report, nil
}

func (uc *ScanUseCase) finish() {
	uc.mu.Lock()
	uc.running = false
	uc.cancel = nil
	uc.mu.Unlock()
}

func (uc *ScanUseCase) run(ctx context.Context, job *ScanJob) {
	defer uc.finish()

	now := time.Now()
	uc.mu.Lock()
	job.Status = ScanStatusRunning
	job.StartedAt = &now
	uc.mu.Unlock()
	uc.updateJob(job)

	uc.progress.Publish(ProgressEvent{Phase: PhaseConnecting})
	uc.progress.Publish(ProgressEvent{Phase: PhaseResolvingChannel})
	uc.progress.Publish(ProgressEvent{Phase: PhaseCountingMessages})

	snapshot, err := uc.remote.Scan(ctx, uc.cfg.ScanLimit, func(p telegram.ScanProgress) {
		uc.mu.Lock()
		job.TotalMessages = p.Total
		job.MessagesScanned = p.Current
		job.FilesFound = p.FilesFound
		uc.mu.Unlock()
		uc.progress.Publish(ProgressEvent{
			Phase:      PhaseScanning,
			Current:    p.Current,
			Total:      p.Total,
			FilesFound: p.FilesFound,
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			uc.completeJob(job, ScanStatusCancelled, "")
			return
		}
		uc.failJob(job, err)
		return
	}

	uc.progress.Publish(ProgressEvent{Phase: PhaseSaving, FilesFound: job.FilesFound})

	remote := filterRemote(snapshot)

	live, err := uc.catalog.ListLiveAll(context.Background(), job.OwnerID)
	if err != nil {
		uc.failJob(job, err)
		return
	}

	change, report := reconcileDiff(job.OwnerID, live, remote, uc.cfg.ScanPruneOutsideWindow)

	if err := uc.catalog.ApplyReconcile(context.Background(), job.OwnerID, change); err != nil {
		uc.failJob(job, err)
		return
	}
	if uc.cache != nil {
		uc.cache.InvalidateOwner(context.Background(), job.OwnerID)
	}

	uc.backfillCaptions(ctx, remote)

	uc.mu.Lock()
	uc.lastReport = report
	job.FilesFound = report.TotalRemote
	uc.mu.Unlock()

	uc.completeJob(job, ScanStatusCompleted, "")

	uc.logger.Info("reconciliation completed",
		zap.Int("total_remote", report.TotalRemote),
		zap.Int("added", report.Added),
		zap.Int("removed", report.Removed),
	)
	uc.progress.Publish(ProgressEvent{
		Phase:      PhaseCompleted,
		Current:    job.MessagesScanned,
		Total:      job.TotalMessages,
		FilesFound: report.TotalRemote,
	})
}

func (uc *ScanUseCase) failJob(job *ScanJob, err error) {
	if apperrors.ExtractCode(err) == apperrors.ErrNotAuthenticated {
		uc.logger.Warn("reconciliation aborted, session not authorized")
	} else {
		uc.logger.Error("reconciliation failed", zap.Error(err))
	}
	uc.completeJob(job, ScanStatusFailed, err.Error())
	uc.progress.Publish(ProgressEvent{Phase: PhaseError, Error: err.Error()})
}

func (uc *ScanUseCase) completeJob(job *ScanJob, status, errMsg string) {
	now := time.Now()
	uc.mu.Lock()
	job.Status = status
	job.CompletedAt = &now
	job.ErrorMessage = errMsg
	uc.mu.Unlock()
	uc.updateJob(job)
}

func (uc *ScanUseCase) updateJob(job *ScanJob) {
	// job bookkeeping never uses the scan context: a cancelled run must
	// still record its terminal status
	if err := uc.jobs.Update(context.Background(), job); err != nil {
		uc.logger.Warn("failed to persist scan job", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

// backfillCaptions prepends the unique-id line to remote captions that
// lack one, bounded per run. Failures are logged only.
func (uc *ScanUseCase) backfillCaptions(ctx context.Context, remote []telegram.RemoteFile) {
	edited := 0
	for _, r := range remote {
		if edited >= uc.cfg.CaptionBackfillLimit {
			break
		}
		if caption.Parse(r.Caption).HasUniqueID {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		id, err := uc.mintUniqueID(context.Background())
		if err != nil {
			uc.logger.Warn("caption backfill: failed to mint id", zap.Error(err))
			return
		}
		if err := uc.remote.EditCaption(ctx, r.MessageID, caption.WithID(r.Caption, id)); err != nil {
			uc.logger.Warn("caption backfill failed",
				zap.Int("message_id", r.MessageID),
				zap.Error(err),
			)
			continue
		}
		edited++
	}
	if edited > 0 {
		uc.logger.Info("caption ids backfilled", zap.Int("edited", edited))
	}
}

func (uc *ScanUseCase) mintUniqueID(ctx context.Context) (int64, error) {
	id := time.Now().UnixMilli()
	for {
		existing, err := uc.catalog.FindByUniqueID(ctx, id)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return id, nil
		}
		id++
	}
}

// filterRemote applies the snapshot filters: test-file markers are
// dropped, then filenames deduplicate keeping the largest message id.
// The result is ordered newest first.
func filterRemote(snapshot []telegram.RemoteFile) []telegram.RemoteFile {
	byName := make(map[string]telegram.RemoteFile)
	for _, r := range snapshot {
		if isTestFilename(r.Filename) {
			continue
		}
		if kept, ok := byName[r.Filename]; ok && kept.MessageID >= r.MessageID {
			continue
		}
		byName[r.Filename] = r
	}

	out := make([]telegram.RemoteFile, 0, len(byName))
	for _, r := range byName {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID > out[j].MessageID })
	return out
}

func isTestFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range testFileMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// reconcileDiff computes the transactional change that aligns the live
// catalog with the filtered remote set. Never-pushed local rows and rows
// whose message vanished are purged; catalog-internal duplicates keep
// one row. When pruning outside the snapshot window is disabled, rows
// older than the oldest seen message are retained.
func reconcileDiff(ownerID int64, live []*File, remote []telegram.RemoteFile, pruneOutsideWindow bool) (*ReconcileChange, *ReconcileReport) {
	change := &ReconcileChange{}
	report := &ReconcileReport{TotalRemote: len(remote), RemovedFiles: []RemovedFile{}}

	remoteByMsg := make(map[int]telegram.RemoteFile, len(remote))
	oldestSeen := 0
	for _, r := range remote {
		remoteByMsg[r.MessageID] = r
		if oldestSeen == 0 || r.MessageID < oldestSeen {
			oldestSeen = r.MessageID
		}
	}

	retained := make(map[int]bool)

	// within a duplicate pair the newer catalog row wins
	ordered := make([]*File, len(live))
	copy(ordered, live)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RemoteMessageID > ordered[j].RemoteMessageID })

	remove := func(f *File, reason string) {
		change.HardDeleteIDs = append(change.HardDeleteIDs, f.ID)
		report.RemovedFiles = append(report.RemovedFiles, RemovedFile{
			Filename:  f.Filename,
			MessageID: f.RemoteMessageID,
			Reason:    reason,
		})
	}

	for _, d := range ordered {
		switch {
		case d.StorageType == StorageLocal || d.RemoteMessageID == 0:
			remove(d, ReasonNoMessageID)

		case retained[d.RemoteMessageID]:
			remove(d, ReasonDuplicate)

		default:
			if _, inRemote := remoteByMsg[d.RemoteMessageID]; !inRemote {
				if !pruneOutsideWindow && oldestSeen > 0 && d.RemoteMessageID < oldestSeen {
					// outside the snapshot window, keep
					retained[d.RemoteMessageID] = true
					continue
				}
				remove(d, ReasonNotInRemote)
				continue
			}

			retained[d.RemoteMessageID] = true
			if d.RemoteChannel != SavedMessagesChannel {
				d.RemoteChannel = SavedMessagesChannel
				change.Updates = append(change.Updates, d)
			}
		}
	}

	for _, r := range remote {
		if retained[r.MessageID] {
			continue
		}
		change.Inserts = append(change.Inserts, fileFromRemote(ownerID, r))
	}

	report.Added = len(change.Inserts)
	report.Removed = len(change.HardDeleteIDs)
	return change, report
}

// fileFromRemote builds a catalog entry for a snapshot-only file. The
// unique id comes from the caption when present, photo-framed media
// falls back to the message id as object id.
func fileFromRemote(ownerID int64, r telegram.RemoteFile) *File {
	objectID := r.ObjectID
	mime := r.MIME
	if r.IsPhoto {
		objectID = int64(r.MessageID)
		mime = "application/octet-stream"
	}

	file := &File{
		OwnerID:          ownerID,
		Filename:         r.Filename,
		OriginalFilename: r.Filename,
		Size:             r.Size,
		MIME:             mime,
		StorageType:      StorageRemote,
		RemoteMessageID:  r.MessageID,
		RemoteChannel:    SavedMessagesChannel,
		RemoteChannelID:  SavedMessagesPeer,
		RemoteObjectID:   strconv.FormatInt(objectID, 10),
		RemoteAccessHash: strconv.FormatInt(r.AccessHash, 10),
		RemoteReference:  r.Reference,
		IsPhoto:          r.IsPhoto,
	}

	if parsed := caption.Parse(r.Caption); parsed.HasUniqueID {
		file.UniqueID = parsed.UniqueID
	}
	return file
}
