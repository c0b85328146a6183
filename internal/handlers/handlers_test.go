package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialib/internal/bulk"
	"medialib/internal/library/librarytest"
	"medialib/internal/media/pipeline"
	"medialib/internal/media/watermark"
	"medialib/internal/models"
	"medialib/internal/security"
	"medialib/internal/service"
	"medialib/internal/upload"
)

const secret = "handler-secret"

type fakeEditor struct {
	err     error
	derived []service.DeriveRequest
}

func (f *fakeEditor) Derive(_ context.Context, req service.DeriveRequest) (models.Asset, error) {
	f.derived = append(f.derived, req)
	if f.err != nil {
		return models.Asset{}, f.err
	}
	return models.Asset{ID: "new-1", Status: models.AssetStatusReady}, nil
}

func (f *fakeEditor) Resume(_ context.Context, req service.ResumeRequest) (models.Asset, error) {
	return models.Asset{ID: req.Reservation.AssetID, Status: models.AssetStatusReady}, nil
}

func (f *fakeEditor) Preview(context.Context, service.DeriveRequest) ([]byte, pipeline.Format, error) {
	return []byte("png"), pipeline.FormatPNG, nil
}

type noLogos struct{}

func (noLogos) Load(context.Context, watermark.Settings) (image.Image, error) { return nil, nil }

type fixture struct {
	router *gin.Engine
	repo   *librarytest.Repository
	editor *fakeEditor
	marks  *watermark.MemoryStore
	token  string
}

// newFixture serves a library with folders f1, f2 and assets a1..a4 at the root.
func newFixture(t *testing.T, scopes ...string) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := librarytest.NewRepository()
	repo.AddFolder("f1", "Holidays", nil)
	repo.AddFolder("f2", "Work", nil)
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		repo.AddAsset(id, id+".jpg", nil)
	}
	editor := &fakeEditor{}
	marks := watermark.NewMemoryStore(watermark.DefaultSettings())

	if len(scopes) == 0 {
		scopes = []string{security.ScopeLibraryWrite, security.ScopeEditorWrite, security.ScopeWatermarkAdmin}
	}
	token, err := security.GenerateAccessToken(secret, "ops", scopes, time.Minute)
	require.NoError(t, err)

	h := NewHandlerSet(zerolog.Nop(), Deps{
		Environment: "test",
		JWTSecret:   secret,
		Library:     repo,
		Bulk:        bulk.NewCoordinator(repo, zerolog.Nop()),
		Editor:      editor,
		Watermarks:  marks,
		Logos:       noLogos{},
		Checks: map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return nil }),
		},
	})
	router := gin.New()
	h.Register(router.Group("/api"))
	return fixture{router: router, repo: repo, editor: editor, marks: marks, token: token}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func key(kind, id string) map[string]string { return map[string]string{"kind": kind, "id": id} }

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"},"environment":"test"}`, rec.Body.String())
}

func TestListingOrdersFoldersBeforeAssets(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/library/listing", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Keys []map[string]string `json:"keys"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Keys, 6)
	assert.Equal(t, key("folder", "f1"), resp.Keys[0])
	assert.Equal(t, key("folder", "f2"), resp.Keys[1])
	assert.Equal(t, key("asset", "a1"), resp.Keys[2])
}

func TestSelectionReplaysShiftClick(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/library/selection", gin.H{
		"events": []gin.H{
			{"type": "click", "key": key("folder", "f2")},
			{"type": "shift-click", "key": key("asset", "a2")},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Selected  []map[string]string `json:"selected"`
		Count     int                 `json:"count"`
		LastIndex *int                `json:"lastIndex"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, []map[string]string{key("folder", "f2"), key("asset", "a1"), key("asset", "a2")}, resp.Selected)
	require.NotNil(t, resp.LastIndex)
	assert.Equal(t, 3, *resp.LastIndex)
}

func TestSelectionRejectsUnknownEvent(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/library/selection", gin.H{
		"events": []gin.H{{"type": "double-click", "key": key("asset", "a1")}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkMoveCycleIsConflict(t *testing.T) {
	f := newFixture(t)
	f.repo.AddFolder("f1c", "Child", librarytest.ID("f1"))

	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/move", gin.H{
		"keys":           []map[string]string{key("folder", "f1")},
		"targetFolderId": "f1c",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, "move_cycle", resp["error"])
	assert.Empty(t, f.repo.Calls())
}

func TestBulkMoveBySelection(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/move", gin.H{
		"events": []gin.H{
			{"type": "click", "key": key("asset", "a1")},
			{"type": "shift-click", "key": key("asset", "a3")},
		},
		"targetFolderId": "f2",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp resultResponse
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Succeeded)
	assert.Zero(t, resp.Failed)
	moved, _ := f.repo.Asset("a2")
	require.NotNil(t, moved.FolderID)
	assert.Equal(t, "f2", *moved.FolderID)
}

func TestBulkDeleteNotEmpty(t *testing.T) {
	f := newFixture(t)
	f.repo.AddAsset("inside", "inside.jpg", librarytest.ID("f1"))

	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/delete", gin.H{
		"keys": []map[string]string{key("folder", "f1"), key("asset", "a1")},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, "folder_not_empty", resp["error"])
	_, stillThere := f.repo.Asset("a1")
	assert.True(t, stillThere)
}

func TestBulkDeleteReparentOrphansMovesContentToParent(t *testing.T) {
	f := newFixture(t)
	f.repo.AddAsset("inside", "inside.jpg", librarytest.ID("f1"))

	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/delete", gin.H{
		"keys":            []map[string]string{key("folder", "f1")},
		"reparentOrphans": true,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	_, folderLeft := f.repo.Folder("f1")
	assert.False(t, folderLeft)
	orphan, ok := f.repo.Asset("inside")
	require.True(t, ok)
	assert.Nil(t, orphan.FolderID)
}

func TestBulkDeletePartialFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.FailDelete("a2", errors.New("locked by storage"))

	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/delete", gin.H{
		"events":    []gin.H{{"type": "select-all"}},
		"recursive": true,
	})

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	var resp struct {
		Result resultResponse `json:"result"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 5, resp.Result.Succeeded)
	assert.Equal(t, 1, resp.Result.Failed)
	require.Len(t, resp.Result.Failures, 1)
	assert.Equal(t, "a2", resp.Result.Failures[0].Key.ID())
	assert.Contains(t, resp.Result.Failures[0].Error, "locked by storage")
}

func TestBulkRequiresSelection(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/delete", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLibraryWriteNeedsScope(t *testing.T) {
	f := newFixture(t, security.ScopeLibraryRead)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/library/listing", nil).Code)
	rec := f.do(t, http.MethodPost, "/api/v1/library/bulk/delete", gin.H{"keys": []map[string]string{key("asset", "a1")}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDerivePendingReturnsReservation(t *testing.T) {
	f := newFixture(t)
	res := upload.Reservation{AssetID: "new-9", URL: "https://cdn.test/assets/new-9.jpg", SizeBytes: 42, State: upload.StateReserved}
	f.editor.err = &service.DerivationPendingError{
		Request: service.DeriveRequest{SourceAssetID: "a1"},
		Upload:  &upload.PartialUploadError{AssetID: "new-9", Reservation: res, Err: errors.New("reset")},
	}

	rec := f.do(t, http.MethodPost, "/api/v1/editor/derive", gin.H{
		"sourceAssetId": "a1",
		"spec":          gin.H{"crop": gin.H{"width": 10, "height": 10}},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp struct {
		Error       string             `json:"error"`
		Reservation upload.Reservation `json:"reservation"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "upload_incomplete", resp.Error)
	assert.Equal(t, "new-9", resp.Reservation.AssetID)
	assert.Equal(t, "https://cdn.test/assets/new-9.jpg", resp.Reservation.URL)
	assert.Equal(t, int64(42), resp.Reservation.SizeBytes)
}

func TestDeriveMapsCropError(t *testing.T) {
	f := newFixture(t)
	f.editor.err = &pipeline.InvalidCropError{Crop: pipeline.Crop{X: 50, Width: 10, Height: 10}, Canvas: image.Rect(0, 0, 40, 40)}

	rec := f.do(t, http.MethodPost, "/api/v1/editor/derive", gin.H{"sourceAssetId": "a1"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeriveReplaceTypeChangeIsConflict(t *testing.T) {
	f := newFixture(t)
	f.editor.err = fmt.Errorf("reserve upload: %w", service.ErrReplaceTypeChange)

	rec := f.do(t, http.MethodPost, "/api/v1/editor/derive", gin.H{"sourceAssetId": "a1", "replaceSource": true})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, "replace_type_mismatch", resp["error"])
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/editor/resume", gin.H{
		"request":     gin.H{"sourceAssetId": "a1"},
		"reservation": gin.H{"assetId": "new-9", "sizeBytes": 42},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var asset models.Asset
	decode(t, rec, &asset)
	assert.Equal(t, "new-9", asset.ID)
}

func TestWatermarkPutValidatesAndReplaces(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/watermark", gin.H{"enabled": true, "type": "text", "position": "top-left", "size": "small"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "enabled text mark needs text")

	rec = f.do(t, http.MethodPut, "/api/v1/watermark", gin.H{
		"enabled": true, "type": "text", "text": "medialib", "position": "top-left", "size": "small", "opacityPercent": 80,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.marks.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "medialib", stored.Text)
	assert.Equal(t, watermark.TopLeft, stored.Position)

	rec = f.do(t, http.MethodGet, "/api/v1/watermark", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got watermark.Settings
	decode(t, rec, &got)
	assert.Equal(t, stored, got)
}

func TestWatermarkPreviewIsPNG(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/watermark/preview", gin.H{
		"width": 200, "height": 100,
		"settings": gin.H{"type": "text", "text": "medialib", "position": "center", "size": "large", "opacityPercent": 100},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())
}
