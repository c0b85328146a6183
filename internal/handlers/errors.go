package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"medialib/internal/bulk"
	"medialib/internal/library"
	"medialib/internal/media/pipeline"
	"medialib/internal/media/watermark"
	"medialib/internal/repository"
	"medialib/internal/service"
	"medialib/internal/storage"
	"medialib/internal/upload"
)

type failureResponse struct {
	Key   library.Key `json:"key"`
	Error string      `json:"error"`
}

type resultResponse struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Completed []library.Key     `json:"completed"`
	Failures  []failureResponse `json:"failures"`
}

func newResultResponse(r bulk.Result) resultResponse {
	resp := resultResponse{
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Completed: r.Completed,
		Failures:  make([]failureResponse, 0, len(r.Failures)),
	}
	if resp.Completed == nil {
		resp.Completed = []library.Key{}
	}
	for _, f := range r.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, failureResponse{Key: f.Key, Error: msg})
	}
	return resp
}

func badRequest(c *gin.Context, code string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": err.Error()})
}

// writeError maps domain errors onto HTTP responses.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	var (
		invalid   validation.Errors
		cycle     *bulk.CycleError
		notEmpty  *bulk.NotEmptyError
		partial   *bulk.PartialBatchError
		decodeErr *pipeline.DecodeError
		cropErr   *pipeline.InvalidCropError
		pending   *service.DerivationPendingError
		uploadErr *upload.PartialUploadError
	)

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "fields": invalid})
	case errors.As(err, &cycle):
		c.JSON(http.StatusConflict, gin.H{"error": "move_cycle", "message": cycle.Error(), "folderId": cycle.FolderID, "targetId": cycle.TargetID})
	case errors.As(err, &notEmpty):
		c.JSON(http.StatusConflict, gin.H{"error": "folder_not_empty", "message": notEmpty.Error(), "folderIds": notEmpty.FolderIDs})
	case errors.Is(err, bulk.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "bulk_busy", "message": err.Error()})
	case errors.As(err, &partial):
		c.JSON(http.StatusMultiStatus, gin.H{"error": "partial_failure", "op": partial.Op, "result": newResultResponse(partial.Result)})
	case errors.As(err, &pending):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       "upload_incomplete",
			"message":     pending.Error(),
			"reservation": pending.Upload.Reservation,
			"request":     pending.Request,
		})
	case errors.As(err, &uploadErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload_incomplete", "message": uploadErr.Error(), "reservation": uploadErr.Reservation})
	case errors.As(err, &decodeErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "undecodable_source", "message": decodeErr.Error()})
	case errors.As(err, &cropErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_crop", "message": cropErr.Error()})
	case errors.Is(err, watermark.ErrLogoMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "logo_missing", "message": err.Error()})
	case errors.Is(err, service.ErrReplaceTypeChange):
		c.JSON(http.StatusConflict, gin.H{"error": "replace_type_mismatch", "message": err.Error()})
	case errors.Is(err, upload.ErrSizeMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "size_mismatch", "message": err.Error()})
	case errors.Is(err, storage.ErrObjectTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "source_too_large"})
	case errors.Is(err, repository.ErrFolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "folder_not_found"})
	case errors.Is(err, repository.ErrAssetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "asset_not_found"})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}
