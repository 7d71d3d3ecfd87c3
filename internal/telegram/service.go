package telegram

import (
	"context"
	"strings"

	"github.com/gotd/td/tg"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/telegram/caption"
)

// Service is the high-level remote surface used by the drive use cases.
// Every method runs one broker operation.
type Service struct {
	broker *Broker
	logger *logger.Logger
}

// NewService creates the service
func NewService(broker *Broker, log *logger.Logger) *Service {
	return &Service{
		broker: broker,
		logger: log.Named("telegram"),
	}
}

// UploadFile pushes a local file to Saved Messages with the standard
// caption and returns the acknowledged identifiers.
func (s *Service) UploadFile(ctx context.Context, path, filename, mime string, uniqueID int64) (*UploadResult, error) {
	var result *UploadResult
	err := s.broker.Do(ctx, func(ctx context.Context, h *Handle) error {
		text := caption.Format(caption.Meta{
			Filename: filename,
			UniqueID: uniqueID,
			User:     displayName(h.Self),
		})

		res, err := Upload(ctx, h, UploadRequest{
			Path:     path,
			Filename: filename,
			MIME:     mime,
			Caption:  text,
		}, s.logger)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DownloadFile streams a remote file to outPath
func (s *Service) DownloadFile(ctx context.Context, src Source, outPath string, onRefresh RefreshFunc) error {
	return s.broker.Do(ctx, func(ctx context.Context, h *Handle) error {
		return Download(ctx, h, src, outPath, onRefresh, s.logger)
	})
}

// Scan walks the most recent Saved Messages up to limit
func (s *Service) Scan(ctx context.Context, limit int, progress ProgressFunc) ([]RemoteFile, error) {
	var files []RemoteFile
	err := s.broker.Do(ctx, func(ctx context.Context, h *Handle) error {
		res, err := ScanSavedMessages(ctx, h, limit, progress, s.logger)
		if err != nil {
			return err
		}
		files = res
		return nil
	})
	return files, err
}

// EditCaption rewrites one message caption
func (s *Service) EditCaption(ctx context.Context, messageID int, newCaption string) error {
	return s.broker.Do(ctx, func(ctx context.Context, h *Handle) error {
		return EditCaption(ctx, h, messageID, newCaption)
	})
}

// Delete removes messages from Saved Messages
func (s *Service) Delete(ctx context.Context, ids []int) error {
	return s.broker.Do(ctx, func(ctx context.Context, h *Handle) error {
		return DeleteMessages(ctx, h, ids, s.logger)
	})
}

func displayName(self *tg.User) string {
	name := strings.TrimSpace(self.FirstName + " " + self.LastName)
	if name != "" {
		return name
	}
	if self.Username != "" {
		return self.Username
	}
	return "unknown"
}
