package handlers

import (
	"context"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"medialib/internal/bulk"
	"medialib/internal/library"
	"medialib/internal/media/pipeline"
	"medialib/internal/media/watermark"
	"medialib/internal/middleware"
	"medialib/internal/models"
	"medialib/internal/security"
	"medialib/internal/service"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type BulkRunner interface {
	Move(ctx context.Context, keys []library.Key, target *string) (bulk.Result, error)
	Delete(ctx context.Context, keys []library.Key, opts bulk.DeleteOptions) (bulk.Result, error)
	State() bulk.State
}

type Editor interface {
	Derive(ctx context.Context, req service.DeriveRequest) (models.Asset, error)
	Resume(ctx context.Context, req service.ResumeRequest) (models.Asset, error)
	Preview(ctx context.Context, req service.DeriveRequest) ([]byte, pipeline.Format, error)
}

type LogoSource interface {
	Load(ctx context.Context, s watermark.Settings) (image.Image, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Environment string
	JWTSecret   string
	Library     library.Repository
	Bulk        BulkRunner
	Editor      Editor
	Watermarks  watermark.Store
	Logos       LogoSource
	Checks      map[string]Pinger
	Metrics     http.Handler
}

type HandlerSet struct {
	log  zerolog.Logger
	deps Deps
}

func NewHandlerSet(log zerolog.Logger, deps Deps) HandlerSet {
	return HandlerSet{log: log, deps: deps}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	if h.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.deps.Metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(h.deps.JWTSecret))

	lib := v1.Group("/library")
	lib.GET("/listing", middleware.RequireScopes(security.ScopeLibraryRead, security.ScopeLibraryWrite), h.Listing)
	lib.POST("/selection", middleware.RequireScopes(security.ScopeLibraryRead, security.ScopeLibraryWrite), h.Selection)
	lib.POST("/folders", middleware.RequireScopes(security.ScopeLibraryWrite), h.CreateFolder)
	lib.POST("/bulk/move", middleware.RequireScopes(security.ScopeLibraryWrite), h.BulkMove)
	lib.POST("/bulk/delete", middleware.RequireScopes(security.ScopeLibraryWrite), h.BulkDelete)

	editor := v1.Group("/editor")
	editor.Use(middleware.RequireScopes(security.ScopeEditorWrite))
	editor.POST("/derive", h.Derive)
	editor.POST("/resume", h.Resume)
	editor.POST("/preview", h.PreviewDerivation)

	wm := v1.Group("/watermark")
	wm.GET("", middleware.RequireScopes(security.ScopeEditorWrite, security.ScopeWatermarkAdmin), h.GetWatermark)
	wm.PUT("", middleware.RequireScopes(security.ScopeWatermarkAdmin), h.PutWatermark)
	wm.POST("/preview", middleware.RequireScopes(security.ScopeEditorWrite, security.ScopeWatermarkAdmin), h.PreviewWatermark)
}
