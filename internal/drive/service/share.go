package service

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/skip2/go-qrcode"
	"github.com/teledrive-vn/teledrive/internal/conf"
	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/pkg/response"
	"go.uber.org/zap"
)

// passwordCookieDuration bounds how long a verified share password stays
// valid without re-entry
const passwordCookieDuration = time.Hour

// ShareService exposes link management for the owner plus the public
// tokenized endpoints
type ShareService struct {
	uc      *biz.ShareUseCase
	cfg     *conf.ShareConfig
	ownerID int64
	logger  *logger.Logger
}

func NewShareService(uc *biz.ShareUseCase, cfg *conf.ShareConfig, ownerID int64, log *logger.Logger) *ShareService {
	return &ShareService{uc: uc, cfg: cfg, ownerID: ownerID, logger: log}
}

type shareClaims struct {
	ShareToken string `json:"share_token"`
	jwt.RegisteredClaims
}

type ShareResponse struct {
	ID           int64  `json:"id"`
	FileID       int64  `json:"file_id"`
	Token        string `json:"token"`
	URL          string `json:"url"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	HasPassword  bool   `json:"has_password"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	MaxViews     int    `json:"max_views"`
	MaxDownloads int    `json:"max_downloads"`
	Views        int    `json:"views"`
	Downloads    int    `json:"downloads"`
	CanView      bool   `json:"can_view"`
	CanPreview   bool   `json:"can_preview"`
	CanDownload  bool   `json:"can_download"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
}

func (s *ShareService) toResponse(l *biz.ShareLink) *ShareResponse {
	resp := &ShareResponse{
		ID:           l.ID,
		FileID:       l.FileID,
		Token:        l.Token,
		URL:          s.shareURL(l.Token),
		Name:         l.Name,
		Description:  l.Description,
		HasPassword:  l.PasswordHash != "",
		MaxViews:     l.MaxViews,
		MaxDownloads: l.MaxDownloads,
		Views:        l.Views,
		Downloads:    l.Downloads,
		CanView:      l.CanView,
		CanPreview:   l.CanPreview,
		CanDownload:  l.CanDownload,
		Active:       l.Active,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
	if l.ExpiresAt != nil {
		resp.ExpiresAt = l.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

func (s *ShareService) shareURL(token string) string {
	return fmt.Sprintf("%s/share/%s", strings.TrimRight(s.cfg.BaseURL, "/"), token)
}

type createShareRequest struct {
	FileID       int64  `json:"file_id" binding:"required"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Password     string `json:"password"`
	ExpiresIn    int    `json:"expires_in_hours"`
	MaxViews     int    `json:"max_views"`
	MaxDownloads int    `json:"max_downloads"`
	CanView      *bool  `json:"can_view"`
	CanPreview   *bool  `json:"can_preview"`
	CanDownload  *bool  `json:"can_download"`
}

// Create mints a share link; permission flags default to granted
func (s *ShareService) Create(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "file_id is required")
		return
	}

	params := &biz.CreateShareParams{
		FileID:       req.FileID,
		Name:         req.Name,
		Description:  req.Description,
		Password:     req.Password,
		MaxViews:     req.MaxViews,
		MaxDownloads: req.MaxDownloads,
		CanView:      boolOr(req.CanView, true),
		CanPreview:   boolOr(req.CanPreview, true),
		CanDownload:  boolOr(req.CanDownload, true),
	}
	if req.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresIn) * time.Hour)
		params.ExpiresAt = &t
	}

	link, err := s.uc.Create(c.Request.Context(), s.ownerID, params)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, s.toResponse(link))
}

func (s *ShareService) List(c *gin.Context) {
	links, err := s.uc.List(c.Request.Context(), s.ownerID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	items := make([]*ShareResponse, len(links))
	for i, l := range links {
		items[i] = s.toResponse(l)
	}
	response.Success(c, gin.H{"items": items})
}

func (s *ShareService) Revoke(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.uc.Revoke(c.Request.Context(), s.ownerID, id); err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ShareService) Delete(c *gin.Context) {
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

// Get is the public landing endpoint; a successful resolve counts as a
// view
func (s *ShareService) Get(c *gin.Context) {
	token := c.Param("token")
	link, file, err := s.uc.Resolve(c.Request.Context(), token, c.Query("password"), s.passwordVerified(c, token), biz.AccessView)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"name":         link.Name,
		"description":  link.Description,
		"filename":     file.Filename,
		"size":         file.Size,
		"mime_type":    file.MIME,
		"is_photo":     file.IsPhoto,
		"can_preview":  link.CanPreview,
		"can_download": link.CanDownload,
	})
}

type sharePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Password verifies the link password and sets a short-lived cookie so
// later requests skip the gate
func (s *ShareService) Password(c *gin.Context) {
	token := c.Param("token")
	var req sharePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password is required")
		return
	}

	if _, err := s.uc.VerifyPassword(c.Request.Context(), token, req.Password); err != nil {
		response.HandleError(c, err)
		return
	}

	cookie, err := s.issuePasswordCookie(token)
	if err != nil {
		s.logger.Error("failed to sign share cookie", zap.Error(err))
		response.InternalError(c, "failed to issue access cookie")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, cookie, int(passwordCookieDuration.Seconds()), "/share", "", false, true)
	response.Success(c, nil)
}

// Download serves the shared bytes; a successful resolve counts as a
// download
func (s *ShareService) Download(c *gin.Context) {
	token := c.Param("token")
	link, file, err := s.uc.Resolve(c.Request.Context(), token, c.Query("password"), s.passwordVerified(c, token), biz.AccessDownload)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	path, cleanup, err := s.uc.Open(c.Request.Context(), link, file)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	defer cleanup()

	c.FileAttachment(path, file.Filename)
}

// Preview serves the bytes inline for previewable links
func (s *ShareService) Preview(c *gin.Context) {
	token := c.Param("token")
	link, file, err := s.uc.Resolve(c.Request.Context(), token, c.Query("password"), s.passwordVerified(c, token), biz.AccessPreview)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	path, cleanup, err := s.uc.Open(c.Request.Context(), link, file)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	defer cleanup()

	if _, err := os.Stat(path); err != nil {
		response.NotFound(c, "file not available")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Filename))
	c.Header("Content-Type", file.MIME)
	c.File(path)
}

// QR renders the share URL as a PNG. It never touches the counters.
func (s *ShareService) QR(c *gin.Context) {
	token := c.Param("token")
	if _, err := s.uc.Peek(c.Request.Context(), token); err != nil {
		response.HandleError(c, err)
		return
	}

	png, err := qrcode.Encode(s.shareURL(token), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("failed to render qr code", zap.Error(err))
		response.InternalError(c, "failed to render qr code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *ShareService) issuePasswordCookie(token string) (string, error) {
	claims := &shareClaims{
		ShareToken: token,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(passwordCookieDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "teledrive",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// passwordVerified reports whether the request carries a valid cookie
// for this exact share token
func (s *ShareService) passwordVerified(c *gin.Context, token string) bool {
	raw, err := c.Cookie(s.cfg.CookieName)
	if err != nil {
		return false
	}

	parsed, err := jwt.ParseWithClaims(raw, &shareClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return false
	}

	claims, ok := parsed.Claims.(*shareClaims)
	return ok && parsed.Valid && claims.ShareToken == token
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
