package telegram

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gotd/td/tg"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

const downloadChunkSize = 512 * 1024

// Source identifies a remote file from catalog state. For photo-framed
// media the object id is the message id stand-in, so the real photo
// location is recovered by resolving the message.
type Source struct {
	MessageID  int
	ObjectID   int64
	AccessHash int64
	Reference  []byte
	IsPhoto    bool
	Size       int64
}

// RefreshFunc persists a freshly resolved reference back to the catalog
type RefreshFunc func(ctx context.Context, fresh *RemoteFile) error

// FetchMessage resolves one Saved Messages entry by message id
func FetchMessage(ctx context.Context, h *Handle, messageID int) (*RemoteFile, error) {
	resp, err := h.API.MessagesGetMessages(ctx, []tg.InputMessageClass{
		&tg.InputMessageID{ID: messageID},
	})
	if err != nil {
		return nil, MapError(err)
	}

	var messages []tg.MessageClass
	switch r := resp.(type) {
	case *tg.MessagesMessages:
		messages = r.Messages
	case *tg.MessagesMessagesSlice:
		messages = r.Messages
	default:
		return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "unexpected get_messages response")
	}

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		if msg.ID != messageID {
			continue
		}
		if rf := remoteFileFromMessage(msg); rf != nil {
			return rf, nil
		}
	}

	return nil, apperrors.New(apperrors.ErrRemoteNotFound, "message not found or carries no media")
}

// Download streams a remote file to outPath. The cached reference is
// tried first; on a stale reference the message is re-resolved, the new
// reference handed to onRefresh, and the stream retried exactly once. A
// second expiry becomes ReferenceUnrecoverable. The partial output file
// is removed on failure.
func Download(ctx context.Context, h *Handle, src Source, outPath string, onRefresh RefreshFunc, log *logger.Logger) error {
	loc, size, err := resolveLocation(ctx, h, src)
	if err != nil {
		return err
	}

	err = streamFile(ctx, h, loc, size, outPath, log)
	if !IsReferenceExpired(err) && !apperrors.Is(err, apperrors.ErrReferenceExpired) {
		if err != nil {
			removePartial(outPath, log)
		}
		return err
	}

	log.Info("file reference expired, refreshing", zap.Int("message_id", src.MessageID))

	fresh, ferr := FetchMessage(ctx, h, src.MessageID)
	if ferr != nil {
		removePartial(outPath, log)
		return ferr
	}
	if onRefresh != nil {
		if perr := onRefresh(ctx, fresh); perr != nil {
			log.Warn("failed to persist refreshed reference", zap.Error(perr))
		}
	}

	loc = locationFor(fresh.ObjectID, fresh.AccessHash, fresh.Reference, fresh.IsPhoto, fresh.PhotoThumb)
	err = streamFile(ctx, h, loc, fresh.Size, outPath, log)
	if err != nil {
		removePartial(outPath, log)
		if IsReferenceExpired(err) || apperrors.Is(err, apperrors.ErrReferenceExpired) {
			return apperrors.Wrap(err, apperrors.ErrReferenceUnrecoverable)
		}
		return err
	}
	return nil
}

// resolveLocation builds the fetch location. Documents use cached catalog
// identifiers directly; photos are resolved first because the catalog
// does not hold the photo's own object id.
func resolveLocation(ctx context.Context, h *Handle, src Source) (tg.InputFileLocationClass, int64, error) {
	if !src.IsPhoto {
		return locationFor(src.ObjectID, src.AccessHash, src.Reference, false, ""), src.Size, nil
	}

	rf, err := FetchMessage(ctx, h, src.MessageID)
	if err != nil {
		return nil, 0, err
	}
	return locationFor(rf.ObjectID, rf.AccessHash, rf.Reference, true, rf.PhotoThumb), rf.Size, nil
}

func locationFor(objectID, accessHash int64, reference []byte, isPhoto bool, thumb string) tg.InputFileLocationClass {
	if isPhoto {
		if thumb == "" {
			thumb = "y"
		}
		return &tg.InputPhotoFileLocation{
			ID:            objectID,
			AccessHash:    accessHash,
			FileReference: reference,
			ThumbSize:     thumb,
		}
	}
	return &tg.InputDocumentFileLocation{
		ID:            objectID,
		AccessHash:    accessHash,
		FileReference: reference,
	}
}

// streamFile runs the chunk loop. Transient errors retry with the 2/4/8 s
// ladder resuming from the current offset; a flood wait is slept through
// once. Reference expiry returns immediately for the caller's refresh
// path.
func streamFile(ctx context.Context, h *Handle, loc tg.InputFileLocationClass, size int64, outPath string, log *logger.Logger) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "create output dir")
	}

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "create output file")
	}
	defer f.Close()

	var offset int64
	retries := 0
	floodSlept := false

	for {
		resp, err := h.API.UploadGetFile(ctx, &tg.UploadGetFileRequest{
			Location: loc,
			Offset:   offset,
			Limit:    downloadChunkSize,
		})
		if err != nil {
			if IsReferenceExpired(err) {
				return apperrors.Wrap(err, apperrors.ErrReferenceExpired)
			}
			if seconds, ok := FloodWaitSeconds(err); ok {
				if floodSlept {
					return MapError(err)
				}
				floodSlept = true
				log.Warn("flood wait on download, sleeping", zap.Int("seconds", seconds))
				select {
				case <-time.After(time.Duration(seconds) * time.Second):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if isTransient(err) && retries < 3 {
				retries++
				delay := time.Duration(1<<retries) * time.Second // 2, 4, 8
				log.Warn("transient download error, retrying",
					zap.Int("attempt", retries),
					zap.Int64("offset", offset),
					zap.Error(err),
				)
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return MapError(err)
		}
		retries = 0

		chunk, ok := resp.(*tg.UploadFile)
		if !ok {
			return apperrors.New(apperrors.ErrRemoteUnavailable, "unexpected upload.getFile response")
		}

		if len(chunk.Bytes) > 0 {
			if _, err := f.Write(chunk.Bytes); err != nil {
				return apperrors.Wrap(err, apperrors.ErrInternalServer, "write output file")
			}
			offset += int64(len(chunk.Bytes))
		}

		if len(chunk.Bytes) < downloadChunkSize {
			break
		}
		if size > 0 && offset >= size {
			break
		}
	}

	return f.Sync()
}

func removePartial(path string, log *logger.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove partial download", zap.String("path", path), zap.Error(err))
	}
}
