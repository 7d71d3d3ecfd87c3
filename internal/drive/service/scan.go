package service

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/pkg/response"
	"github.com/teledrive-vn/teledrive/internal/pkg/sse"
)

// ScanService exposes reconciliation control plus the progress stream
type ScanService struct {
	uc      *biz.ScanUseCase
	hub     *sse.Hub
	ownerID int64
	logger  *logger.Logger
}

func NewScanService(uc *biz.ScanUseCase, hub *sse.Hub, ownerID int64, log *logger.Logger) *ScanService {
	return &ScanService{uc: uc, hub: hub, ownerID: ownerID, logger: log}
}

type ScanJobResponse struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
	TotalMessages   int    `json:"total_messages"`
	MessagesScanned int    `json:"messages_scanned"`
	FilesFound      int    `json:"files_found"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

func toScanJobResponse(j *biz.ScanJob) *ScanJobResponse {
	resp := &ScanJobResponse{
		ID:              j.ID,
		Status:          j.Status,
		TotalMessages:   j.TotalMessages,
		MessagesScanned: j.MessagesScanned,
		FilesFound:      j.FilesFound,
		ErrorMessage:    j.ErrorMessage,
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// Start launches a reconciliation run
func (s *ScanService) Start(c *gin.Context) {
	job, err := s.uc.Start(c.Request.Context(), s.ownerID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, toScanJobResponse(job))
}

// Cancel requests cancellation of the running reconciliation
func (s *ScanService) Cancel(c *gin.Context) {
	if !s.uc.Cancel() {
		response.BadRequest(c, "no reconciliation is running")
		return
	}
	response.Success(c, nil)
}

// Status returns the latest job and, when available, the last report
func (s *ScanService) Status(c *gin.Context) {
	job, report, err := s.uc.Status(c.Request.Context(), s.ownerID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	data := gin.H{"running": s.uc.Running()}
	if job != nil {
		data["job"] = toScanJobResponse(job)
	}
	if report != nil {
		data["report"] = report
	}
	response.Success(c, data)
}

// Events streams progress over SSE until the client disconnects
func (s *ScanService) Events(c *gin.Context) {
	sse.Serve(c, s.hub, biz.ProgressTopic)
}
