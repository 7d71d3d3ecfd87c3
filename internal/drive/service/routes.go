package service

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the file endpoints
func (s *FileService) RegisterRoutes(rg *gin.RouterGroup) {
	files := rg.Group("/files")
	{
		files.POST("/upload", s.Upload)
		files.GET("", s.List)
		files.GET("/:id", s.Get)
		files.GET("/:id/download", s.Download)
		files.PUT("/:id/rename", s.Rename)
		files.PUT("/:id/move", s.Move)
		files.DELETE("/:id", s.Delete)
	}
}

// RegisterRoutes mounts the folder endpoints
func (s *FolderService) RegisterRoutes(rg *gin.RouterGroup) {
	folders := rg.Group("/folders")
	{
		folders.POST("", s.Create)
		folders.GET("", s.List)
		folders.PUT("/:id/rename", s.Rename)
		folders.PUT("/:id/move", s.Move)
		folders.DELETE("/:id", s.Delete)
	}
}

// RegisterRoutes mounts the owner-side share management endpoints
func (s *ShareService) RegisterRoutes(rg *gin.RouterGroup) {
	shares := rg.Group("/shares")
	{
		shares.POST("", s.Create)
		shares.GET("", s.List)
		shares.POST("/:id/revoke", s.Revoke)
		shares.DELETE("/:id", s.Delete)
	}
}

// RegisterPublicRoutes mounts the tokenized public endpoints
func (s *ShareService) RegisterPublicRoutes(r *gin.Engine) {
	share := r.Group("/share")
	{
		share.GET("/:token", s.Get)
		share.POST("/:token/password", s.Password)
		share.GET("/:token/download", s.Download)
		share.GET("/:token/preview", s.Preview)
		share.GET("/:token/qr", s.QR)
	}
}

// RegisterRoutes mounts the reconciliation endpoints
func (s *ScanService) RegisterRoutes(rg *gin.RouterGroup) {
	scan := rg.Group("/scan")
	{
		scan.POST("/start", s.Start)
		scan.POST("/cancel", s.Cancel)
		scan.GET("/status", s.Status)
		scan.GET("/events", s.Events)
	}
}
