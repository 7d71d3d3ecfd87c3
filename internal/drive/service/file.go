package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teledrive-vn/teledrive/internal/conf"
	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/pkg/response"
	"go.uber.org/zap"
)

// FileService exposes catalog and transfer operations over HTTP
type FileService struct {
	catalog *biz.CatalogUseCase
	storage *biz.StorageUseCase
	cfg     *conf.StorageConfig
	ownerID int64
	logger  *logger.Logger
}

func NewFileService(catalog *biz.CatalogUseCase, storage *biz.StorageUseCase, cfg *conf.StorageConfig, ownerID int64, log *logger.Logger) *FileService {
	return &FileService{
		catalog: catalog,
		storage: storage,
		cfg:     cfg,
		ownerID: ownerID,
		logger:  log,
	}
}

type FileResponse struct {
	ID               int64  `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	Size             int64  `json:"size"`
	MimeType         string `json:"mime_type"`
	StorageType      string `json:"storage_type"`
	FolderID         *int64 `json:"folder_id"`
	RemoteMessageID  int    `json:"remote_message_id,omitempty"`
	RemoteChannel    string `json:"remote_channel,omitempty"`
	IsPhoto          bool   `json:"is_photo"`
	UniqueID         int64  `json:"teledrive_unique_id,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func toFileResponse(f *biz.File) *FileResponse {
	return &FileResponse{
		ID:               f.ID,
		Filename:         f.Filename,
		OriginalFilename: f.OriginalFilename,
		Size:             f.Size,
		MimeType:         f.MIME,
		StorageType:      f.StorageType,
		FolderID:         f.FolderID,
		RemoteMessageID:  f.RemoteMessageID,
		RemoteChannel:    f.RemoteChannel,
		IsPhoto:          f.IsPhoto,
		UniqueID:         f.UniqueID,
		CreatedAt:        f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        f.UpdatedAt.Format(time.RFC3339),
	}
}

// Upload receives a multipart file, spools it under the uploads root and
// pushes it to Saved Messages. When the remote push fails the file is
// kept locally and the response says so.
func (s *FileService) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing multipart field 'file'")
		return
	}

	var folderID *int64
	if raw := c.PostForm("folder_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid folder_id")
			return
		}
		folderID = &id
	}

	filename := filepath.Base(header.Filename)
	localPath := filepath.Join(s.cfg.UploadsRoot, fmt.Sprintf("%d_%s", time.Now().UnixNano(), filename))
	if err := c.SaveUploadedFile(header, localPath); err != nil {
		s.logger.Error("failed to spool upload", zap.Error(err))
		response.InternalError(c, "failed to store upload")
		return
	}

	mime := header.Header.Get("Content-Type")
	file, err := s.storage.Upload(c.Request.Context(), s.ownerID, localPath, filename, mime, folderID)
	if err != nil {
		if file == nil {
			response.HandleError(c, err)
			return
		}
		// local fallback row was written, report the degraded outcome
		s.logger.Warn("upload fell back to local storage", zap.String("filename", filename), zap.Error(err))
		response.SuccessWithMessage(c, "remote upload failed, file kept locally", toFileResponse(file))
		return
	}

	response.Created(c, toFileResponse(file))
}

// List returns a page of live entries
func (s *FileService) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	files, total, err := s.catalog.List(c.Request.Context(), s.ownerID, page, perPage)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	items := make([]*FileResponse, len(files))
	for i, f := range files {
		items[i] = toFileResponse(f)
	}
	response.Success(c, gin.H{
		"items":    items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// Get returns one live entry
func (s *FileService) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	file, err := s.catalog.Get(c.Request.Context(), s.ownerID, id)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, toFileResponse(file))
}

type renameRequest struct {
	Filename string `json:"filename" binding:"required"`
}

func (s *FileService) Rename(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "filename is required")
		return
	}
	if err := s.catalog.Rename(c.Request.Context(), s.ownerID, id, req.Filename); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

type moveRequest struct {
	FolderID *int64 `json:"folder_id"`
}

func (s *FileService) Move(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := s.catalog.Move(c.Request.Context(), s.ownerID, id, req.FolderID); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

// Delete tombstones an entry. With permanent=true the Saved Messages
// copy is removed as well.
func (s *FileService) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if c.Query("permanent") == "true" {
		if err := s.storage.DeleteRemote(c.Request.Context(), s.ownerID, id); err != nil {
			s.logger.Warn("remote delete failed", zap.Int64("file_id", id), zap.Error(err))
		}
	}

	if err := s.catalog.Delete(c.Request.Context(), s.ownerID, id); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

// Download streams the entry's bytes as an attachment. Remote entries
// are fetched to a temp file first and removed after serving.
func (s *FileService) Download(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	file, err := s.catalog.Get(c.Request.Context(), s.ownerID, id)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	path := file.LocalPath
	if file.IsRemote() {
		path, err = s.storage.Download(c.Request.Context(), s.ownerID, id, "")
		if err != nil {
			response.HandleError(c, err)
			return
		}
		defer func() {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove download temp file", zap.String("path", path), zap.Error(err))
			}
		}()
	}

	c.FileAttachment(path, file.Filename)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
