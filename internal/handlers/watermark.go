package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"medialib/internal/media/pipeline"
	"medialib/internal/media/watermark"
)

const maxPreviewSide = 4096

func (h HandlerSet) GetWatermark(c *gin.Context) {
	settings, err := h.deps.Watermarks.Get(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// PutWatermark replaces the whole settings value.
func (h HandlerSet) PutWatermark(c *gin.Context) {
	settings := watermark.DefaultSettings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	if err := h.deps.Watermarks.Put(c.Request.Context(), settings); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type previewRequest struct {
	Width    int                 `json:"width" binding:"required,min=1"`
	Height   int                 `json:"height" binding:"required,min=1"`
	Settings *watermark.Settings `json:"settings"`
}

// PreviewWatermark renders the mark over a neutral canvas, using the stored
// settings unless the request carries its own.
func (h HandlerSet) PreviewWatermark(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	if req.Width > maxPreviewSide || req.Height > maxPreviewSide {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preview_too_large"})
		return
	}

	ctx := c.Request.Context()
	var settings watermark.Settings
	if req.Settings != nil {
		settings = *req.Settings
		settings.Enabled = true
		if err := settings.Validate(); err != nil {
			h.writeError(c, err)
			return
		}
	} else {
		stored, err := h.deps.Watermarks.Get(ctx)
		if err != nil {
			h.writeError(c, err)
			return
		}
		settings = stored
	}
	settings.Enabled = true

	logo, err := h.deps.Logos.Load(ctx, settings)
	if err != nil {
		h.writeError(c, err)
		return
	}
	img, err := watermark.Preview(req.Width, req.Height, settings, logo)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := pipeline.Encode(&buf, img, pipeline.FormatPNG, 0); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, pipeline.FormatPNG.MimeType(), buf.Bytes())
}
