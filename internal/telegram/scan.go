package telegram

import (
	"context"
	"time"

	"github.com/gotd/td/tg"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

const scanBatchSize = 100

// ScanProgress is one progress tick during a Saved Messages scan
type ScanProgress struct {
	Current    int
	Total      int
	FilesFound int
}

// ProgressFunc receives progress ticks. Called at least once per ten
// scanned messages and once at completion.
type ProgressFunc func(p ScanProgress)

// ScanSavedMessages walks the most recent Saved Messages, newest first,
// collecting every media-bearing entry up to limit messages. Transient
// errors retry up to 3 times with 2/4/8 s delays, resuming from the last
// seen offset rather than restarting.
func ScanSavedMessages(ctx context.Context, h *Handle, limit int, progress ProgressFunc, log *logger.Logger) ([]RemoteFile, error) {
	var (
		files    []RemoteFile
		scanned  int
		total    int
		offsetID int
		retries  int
	)

	emit := func() {
		if progress != nil {
			progress(ScanProgress{Current: scanned, Total: total, FilesFound: len(files)})
		}
	}

	for scanned < limit {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		batch := scanBatchSize
		if remaining := limit - scanned; remaining < batch {
			batch = remaining
		}

		resp, err := h.API.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     &tg.InputPeerSelf{},
			OffsetID: offsetID,
			Limit:    batch,
		})
		if err != nil {
			if seconds, ok := FloodWaitSeconds(err); ok {
				log.Warn("flood wait during scan, sleeping",
					zap.Int("seconds", seconds),
					zap.Int("offset_id", offsetID),
				)
				select {
				case <-time.After(time.Duration(seconds) * time.Second):
					continue
				case <-ctx.Done():
					return files, ctx.Err()
				}
			}
			if isTransient(err) && retries < 3 {
				retries++
				delay := time.Duration(1<<retries) * time.Second // 2, 4, 8
				log.Warn("transient scan error, resuming from offset",
					zap.Int("attempt", retries),
					zap.Int("offset_id", offsetID),
					zap.Error(err),
				)
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return files, ctx.Err()
				}
			}
			return files, MapError(err)
		}
		retries = 0

		var messages []tg.MessageClass
		switch r := resp.(type) {
		case *tg.MessagesMessagesSlice:
			messages = r.Messages
			total = r.Count
		case *tg.MessagesMessages:
			messages = r.Messages
			total = len(r.Messages)
		default:
			return files, apperrors.New(apperrors.ErrRemoteUnavailable, "unexpected history response")
		}

		if len(messages) == 0 {
			break
		}
		if total > limit {
			total = limit
		}

		for _, m := range messages {
			if ctx.Err() != nil {
				return files, ctx.Err()
			}
			var id int
			switch msg := m.(type) {
			case *tg.Message:
				id = msg.ID
				if rf := remoteFileFromMessage(msg); rf != nil {
					files = append(files, *rf)
				}
			case *tg.MessageService:
				id = msg.ID
			case *tg.MessageEmpty:
				id = msg.ID
			}
			if id != 0 {
				offsetID = id
			}

			scanned++
			if scanned%10 == 0 {
				emit()
			}
			if scanned >= limit {
				break
			}
		}

		if len(messages) < batch {
			break
		}
	}

	emit()
	return files, nil
}
