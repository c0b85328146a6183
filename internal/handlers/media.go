package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medialib/internal/service"
)

func (h HandlerSet) Derive(c *gin.Context) {
	var req service.DeriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	if req.SourceAssetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_required"})
		return
	}

	asset, err := h.deps.Editor.Derive(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, asset)
}

func (h HandlerSet) Resume(c *gin.Context) {
	var req service.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	if req.Reservation.AssetID == "" || req.Request.SourceAssetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reservation_required"})
		return
	}

	asset, err := h.deps.Editor.Resume(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

// PreviewDerivation renders without storing and returns the encoded image.
func (h HandlerSet) PreviewDerivation(c *gin.Context) {
	var req service.DeriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}

	payload, format, err := h.deps.Editor.Preview(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, format.MimeType(), payload)
}
