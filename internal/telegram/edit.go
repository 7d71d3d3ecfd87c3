package telegram

import (
	"context"
	"time"

	"github.com/gotd/td/tg"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

// EditCaption rewrites the caption of one Saved Messages entry. Used by
// the reconciler's id backfill; failures are the caller's to log, not to
// fail on.
func EditCaption(ctx context.Context, h *Handle, messageID int, newCaption string) error {
	_, err := h.API.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:    &tg.InputPeerSelf{},
		ID:      messageID,
		Message: newCaption,
	})
	if err != nil {
		return MapError(err)
	}
	return nil
}

// DeleteMessages removes Saved Messages entries for everyone. A flood
// wait is slept through once.
func DeleteMessages(ctx context.Context, h *Handle, ids []int, log *logger.Logger) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := h.API.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     ids,
	})
	if seconds, ok := FloodWaitSeconds(err); ok {
		log.Warn("flood wait on delete, sleeping", zap.Int("seconds", seconds))
		select {
		case <-time.After(time.Duration(seconds) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		_, err = h.API.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
			Revoke: true,
			ID:     ids,
		})
	}
	if err != nil {
		return MapError(err)
	}
	return nil
}
