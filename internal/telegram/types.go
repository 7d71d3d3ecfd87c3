package telegram

import (
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"github.com/teledrive-vn/teledrive/internal/telegram/caption"
)

const defaultMIME = "application/octet-stream"

// RemoteFile is one media-bearing Saved Messages entry as seen by the
// scanner and the downloader.
type RemoteFile struct {
	MessageID  int
	Date       time.Time
	Caption    string
	Filename   string
	Size       int64
	MIME       string
	ObjectID   int64
	AccessHash int64
	Reference  []byte
	IsPhoto    bool

	// largest available size type, photos only
	PhotoThumb string
}

// remoteFileFromMessage extracts a RemoteFile from a message, returning
// nil when the message carries no usable media.
func remoteFileFromMessage(msg *tg.Message) *RemoteFile {
	if msg == nil || msg.Media == nil {
		return nil
	}

	rf := &RemoteFile{
		MessageID: msg.ID,
		Date:      time.Unix(int64(msg.Date), 0),
		Caption:   msg.Message,
	}

	switch media := msg.Media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := media.Document.(*tg.Document)
		if !ok {
			return nil
		}
		rf.ObjectID = doc.ID
		rf.AccessHash = doc.AccessHash
		rf.Reference = doc.FileReference
		rf.Size = doc.Size
		rf.MIME = doc.MimeType
		for _, attr := range doc.Attributes {
			if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
				rf.Filename = fn.FileName
				break
			}
		}

	case *tg.MessageMediaPhoto:
		photo, ok := media.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		rf.IsPhoto = true
		rf.ObjectID = photo.ID
		rf.AccessHash = photo.AccessHash
		rf.Reference = photo.FileReference
		rf.MIME = "image/jpeg"
		rf.PhotoThumb, rf.Size = largestPhotoSize(photo)

	default:
		return nil
	}

	if rf.MIME == "" {
		rf.MIME = defaultMIME
	}
	if rf.Filename == "" {
		rf.Filename = fmt.Sprintf("photo_%d.jpg", msg.ID)
	}

	// the caption-embedded filename wins over the document attribute
	if parsed := caption.Parse(rf.Caption); parsed.HasFilename {
		rf.Filename = parsed.Filename
	}

	return rf
}

// largestPhotoSize returns the type and byte size of the biggest
// available photo rendition.
func largestPhotoSize(photo *tg.Photo) (string, int64) {
	var thumb string
	var size int64
	for _, s := range photo.Sizes {
		switch ps := s.(type) {
		case *tg.PhotoSize:
			if int64(ps.Size) >= size {
				size = int64(ps.Size)
				thumb = ps.Type
			}
		case *tg.PhotoSizeProgressive:
			if len(ps.Sizes) > 0 {
				last := int64(ps.Sizes[len(ps.Sizes)-1])
				if last >= size {
					size = last
					thumb = ps.Type
				}
			}
		}
	}
	return thumb, size
}
