package telegram

import (
	"context"
	"math/rand"
	"time"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.uber.org/zap"
)

// UploadRequest describes one file to push to Saved Messages
type UploadRequest struct {
	Path     string // local file to read
	Filename string // sanitized display filename
	MIME     string
	Caption  string
}

// UploadResult carries the identifiers extracted from the server
// acknowledgment.
type UploadResult struct {
	MessageID  int
	ObjectID   int64
	AccessHash int64
	Reference  []byte
	IsPhoto    bool
	MIME       string
}

// Upload sends a local file to Saved Messages as a captioned document.
// A FloodWait is slept through and retried once; a second one surfaces.
func Upload(ctx context.Context, h *Handle, req UploadRequest, log *logger.Logger) (*UploadResult, error) {
	up := uploader.NewUploader(h.API)

	file, err := up.FromPath(ctx, req.Path)
	if err != nil {
		return nil, MapError(err)
	}

	mime := req.MIME
	if mime == "" {
		mime = defaultMIME
	}

	sendReq := &tg.MessagesSendMediaRequest{
		Peer: &tg.InputPeerSelf{},
		Media: &tg.InputMediaUploadedDocument{
			File:     file,
			MimeType: mime,
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: req.Filename},
			},
		},
		Message:  req.Caption,
		RandomID: rand.Int63(),
	}

	updates, err := h.API.MessagesSendMedia(ctx, sendReq)
	if seconds, ok := FloodWaitSeconds(err); ok {
		log.Warn("flood wait on upload, sleeping",
			zap.Int("seconds", seconds),
			zap.String("filename", req.Filename),
		)
		select {
		case <-time.After(time.Duration(seconds) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		sendReq.RandomID = rand.Int63()
		updates, err = h.API.MessagesSendMedia(ctx, sendReq)
	}
	if err != nil {
		return nil, MapError(err)
	}

	msg := findSentMessage(updates)
	if msg == nil {
		return nil, apperrors.New(apperrors.ErrRemoteUnavailable, "upload acknowledgment carried no message")
	}

	return resultFromMessage(msg), nil
}

// findSentMessage digs the sent message out of the acknowledgment updates
func findSentMessage(updates tg.UpdatesClass) *tg.Message {
	var list []tg.UpdateClass
	switch u := updates.(type) {
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	default:
		return nil
	}

	for _, upd := range list {
		switch u := upd.(type) {
		case *tg.UpdateNewMessage:
			if msg, ok := u.Message.(*tg.Message); ok {
				return msg
			}
		case *tg.UpdateNewChannelMessage:
			if msg, ok := u.Message.(*tg.Message); ok {
				return msg
			}
		}
	}
	return nil
}

// resultFromMessage extracts remote identifiers. Media that came back
// photo-framed has no document id; the message id stands in as the
// object id and the mime falls back to the generic default.
func resultFromMessage(msg *tg.Message) *UploadResult {
	res := &UploadResult{MessageID: msg.ID, MIME: defaultMIME}

	rf := remoteFileFromMessage(msg)
	if rf == nil {
		res.ObjectID = int64(msg.ID)
		return res
	}

	res.ObjectID = rf.ObjectID
	res.AccessHash = rf.AccessHash
	res.Reference = rf.Reference
	res.IsPhoto = rf.IsPhoto
	if rf.IsPhoto {
		res.ObjectID = int64(msg.ID)
	} else {
		res.MIME = rf.MIME
	}
	return res
}
