package service

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/pkg/response"
)

// FolderService exposes the folder tree over HTTP
type FolderService struct {
	uc      *biz.FolderUseCase
	ownerID int64
	logger  *logger.Logger
}

func NewFolderService(uc *biz.FolderUseCase, ownerID int64, log *logger.Logger) *FolderService {
	return &FolderService{uc: uc, ownerID: ownerID, logger: log}
}

type FolderResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ParentID  *int64 `json:"parent_id"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

func toFolderResponse(f *biz.Folder) *FolderResponse {
	return &FolderResponse{
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		Path:      f.Path,
		CreatedAt: f.CreatedAt.Format(time.RFC3339),
	}
}

type createFolderRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *int64 `json:"parent_id"`
}

func (s *FolderService) Create(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}
	folder, err := s.uc.Create(c.Request.Context(), s.ownerID, req.Name, req.ParentID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, toFolderResponse(folder))
}

// List returns the children of parent_id, or the root folders
func (s *FolderService) List(c *gin.Context) {
	var parentID *int64
	if raw := c.Query("parent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid parent_id")
			return
		}
		parentID = &id
	}

	folders, err := s.uc.List(c.Request.Context(), s.ownerID, parentID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	items := make([]*FolderResponse, len(folders))
	for i, f := range folders {
		items[i] = toFolderResponse(f)
	}
	response.Success(c, gin.H{"items": items})
}

type renameFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *FolderService) Rename(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req renameFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}
	if err := s.uc.Rename(c.Request.Context(), s.ownerID, id, req.Name); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

type moveFolderRequest struct {
	ParentID *int64 `json:"parent_id"`
}

func (s *FolderService) Move(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req moveFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := s.uc.Move(c.Request.Context(), s.ownerID, id, req.ParentID); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *FolderService) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.uc.Delete(c.Request.Context(), s.ownerID, id); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}
