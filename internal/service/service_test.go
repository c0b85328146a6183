package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialib/internal/config"
	"medialib/internal/media/pipeline"
	"medialib/internal/media/watermark"
	"medialib/internal/models"
	"medialib/internal/storage"
	"medialib/internal/upload"
)

type fakeAssets struct {
	mu     sync.Mutex
	assets map[string]models.Asset
}

func newFakeAssets(assets ...models.Asset) *fakeAssets {
	f := &fakeAssets{assets: make(map[string]models.Asset)}
	for _, a := range assets {
		f.assets[a.ID] = a
	}
	return f
}

func (f *fakeAssets) Reserve(_ context.Context, asset models.Asset, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[asset.ID] = asset
	return nil
}

func (f *fakeAssets) Replace(_ context.Context, id, filename, mimeType string, sizeBytes int64, width, height *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return errors.New("not found")
	}
	a.Filename, a.MimeType, a.SizeBytes, a.Width, a.Height = filename, mimeType, sizeBytes, width, height
	f.assets[id] = a
	return nil
}

func (f *fakeAssets) GetByID(_ context.Context, id string) (models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return models.Asset{}, errors.New("not found")
	}
	return a, nil
}

func (f *fakeAssets) MarkReady(_ context.Context, id string) (models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.assets[id]
	a.Status = models.AssetStatusReady
	f.assets[id] = a
	return a, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Bucket() string { return "assets" }

func (f *fakeObjects) PresignPut(_ context.Context, bucket, key string) (*url.URL, time.Time, error) {
	return &url.URL{Scheme: "https", Host: "store.test", Path: "/" + bucket + "/" + key}, time.Now().Add(15 * time.Minute), nil
}

func (f *fakeObjects) Size(_ context.Context, bucket, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return 0, storage.ErrObjectNotFound
	}
	return int64(len(b)), nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string, _ int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return b, nil
}

func (f *fakeObjects) PublicURL(bucket, key string) string {
	return "https://cdn.test/" + bucket + "/" + key
}

func (f *fakeObjects) put(bucket, key string, b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = b
}

type fakeUploader struct {
	fail     bool
	requests []upload.ReserveRequest
	payloads [][]byte
	resumed  [][]byte
}

func (f *fakeUploader) Upload(_ context.Context, req upload.ReserveRequest, payload []byte) (models.Asset, error) {
	f.requests = append(f.requests, req)
	f.payloads = append(f.payloads, payload)
	if f.fail {
		res := upload.Reservation{AssetID: "new-1", MimeType: req.MimeType, SizeBytes: int64(len(payload)), State: upload.StateReserved}
		return models.Asset{}, &upload.PartialUploadError{AssetID: "new-1", Reservation: res, Err: errors.New("connection reset")}
	}
	return models.Asset{ID: "new-1", Filename: req.Filename, MimeType: req.MimeType, Status: models.AssetStatusReady}, nil
}

func (f *fakeUploader) Resume(_ context.Context, res upload.Reservation, payload []byte) (models.Asset, error) {
	f.resumed = append(f.resumed, payload)
	if int64(len(payload)) != res.SizeBytes {
		return models.Asset{}, upload.ErrSizeMismatch
	}
	return models.Asset{ID: res.AssetID, Status: models.AssetStatusReady}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 6), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type editorFixture struct {
	editor   *EditorService
	uploader *fakeUploader
	objects  *fakeObjects
	marks    *watermark.MemoryStore
}

func newEditorFixture(t *testing.T) editorFixture {
	t.Helper()
	folder := "f1"
	source := models.Asset{
		ID: "src", Filename: "cat.png", MimeType: "image/png", FolderID: &folder,
		Bucket: "assets", ObjectKey: "2026/10/15/src.png", Status: models.AssetStatusReady,
	}
	objects := newFakeObjects()
	objects.put(source.Bucket, source.ObjectKey, pngBytes(t, 40, 30))
	uploader := &fakeUploader{}
	marks := watermark.NewMemoryStore(watermark.DefaultSettings())

	editor := NewEditorService(newFakeAssets(source), objects, uploader, marks, nil, nil,
		config.EditorConfig{JPEGQuality: 90, MaxSourceBytes: 1 << 20}, zerolog.Nop())
	return editorFixture{editor: editor, uploader: uploader, objects: objects, marks: marks}
}

func cropSpec(x, y, w, h int) pipeline.EditSpec {
	spec := pipeline.Identity(w, h)
	spec.Crop.X, spec.Crop.Y = x, y
	return spec
}

func TestEditorDeriveStoresNewAsset(t *testing.T) {
	fx := newEditorFixture(t)

	asset, err := fx.editor.Derive(context.Background(), DeriveRequest{
		SourceAssetID: "src",
		Spec:          cropSpec(5, 5, 20, 10),
	})

	require.NoError(t, err)
	assert.Equal(t, "new-1", asset.ID)
	require.Len(t, fx.uploader.requests, 1)
	req := fx.uploader.requests[0]
	assert.Equal(t, "cat-edited.png", req.Filename)
	assert.Equal(t, "image/png", req.MimeType)
	assert.Equal(t, 20, req.Width)
	assert.Equal(t, 10, req.Height)
	require.NotNil(t, req.FolderID)
	assert.Equal(t, "f1", *req.FolderID)
	assert.Empty(t, req.ReplaceAssetID)

	out, err := pipeline.Decode(bytes.NewReader(fx.uploader.payloads[0]))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), out.Bounds())
}

func TestEditorDeriveHonoursOutputType(t *testing.T) {
	fx := newEditorFixture(t)

	_, err := fx.editor.Derive(context.Background(), DeriveRequest{
		SourceAssetID:  "src",
		Spec:           cropSpec(0, 0, 40, 30),
		OutputMimeType: "image/jpeg",
		ReplaceSource:  true,
	})

	require.NoError(t, err)
	req := fx.uploader.requests[0]
	assert.Equal(t, "image/jpeg", req.MimeType)
	assert.Equal(t, "cat.jpg", req.Filename)
	assert.Equal(t, "src", req.ReplaceAssetID)
}

func TestEditorDeriveRejectsBadCropBeforeUpload(t *testing.T) {
	fx := newEditorFixture(t)

	_, err := fx.editor.Derive(context.Background(), DeriveRequest{
		SourceAssetID: "src",
		Spec:          cropSpec(30, 0, 20, 10),
	})

	var cropErr *pipeline.InvalidCropError
	require.ErrorAs(t, err, &cropErr)
	assert.Empty(t, fx.uploader.requests)
}

func TestEditorDeriveRejectsVectorSource(t *testing.T) {
	fx := newEditorFixture(t)
	fx.objects.put("assets", "2026/10/15/src.png", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))

	_, err := fx.editor.Derive(context.Background(), DeriveRequest{SourceAssetID: "src", Spec: cropSpec(0, 0, 1, 1)})

	var decodeErr *pipeline.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Empty(t, fx.uploader.requests)
}

func TestEditorPartialUploadInlinesStoredWatermark(t *testing.T) {
	fx := newEditorFixture(t)
	fx.uploader.fail = true
	settings := watermark.DefaultSettings()
	settings.Enabled = true
	settings.Text = "medialib"
	require.NoError(t, fx.marks.Put(context.Background(), settings))

	_, err := fx.editor.Derive(context.Background(), DeriveRequest{
		SourceAssetID:        "src",
		Spec:                 cropSpec(0, 0, 40, 30),
		ApplyStoredWatermark: true,
	})

	var pending *DerivationPendingError
	require.ErrorAs(t, err, &pending)
	var partial *upload.PartialUploadError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "new-1", partial.AssetID)
	assert.False(t, pending.Request.ApplyStoredWatermark)
	require.NotNil(t, pending.Request.Spec.Watermark)
	assert.Equal(t, "medialib", pending.Request.Spec.Watermark.Text)

	// A settings change after the failure must not alter the resumed bytes.
	settings.Text = "changed"
	require.NoError(t, fx.marks.Put(context.Background(), settings))

	asset, err := fx.editor.Resume(context.Background(), ResumeRequest{
		Request:     pending.Request,
		Reservation: partial.Reservation,
	})

	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusReady, asset.Status)
	require.Len(t, fx.uploader.resumed, 1)
	assert.Equal(t, fx.uploader.payloads[0], fx.uploader.resumed[0])
}

func TestEditorPreviewStoresNothing(t *testing.T) {
	fx := newEditorFixture(t)

	payload, format, err := fx.editor.Preview(context.Background(), DeriveRequest{
		SourceAssetID: "src",
		Spec:          cropSpec(0, 0, 8, 8),
	})

	require.NoError(t, err)
	assert.Equal(t, pipeline.FormatPNG, format)
	assert.NotEmpty(t, payload)
	assert.Empty(t, fx.uploader.requests)
}

func TestUploadIssuerReserveAndConfirm(t *testing.T) {
	assets := newFakeAssets()
	objects := newFakeObjects()
	issuer := NewUploadIssuer(assets, objects)
	issuer.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	res, err := issuer.ReserveUpload(context.Background(), upload.ReserveRequest{
		Filename: "cat.png", MimeType: "image/png", SizeBytes: 4, Width: 2, Height: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, upload.StateReserved, res.State)
	assert.Contains(t, res.Target.URL, "/assets/2026/10/15/"+res.AssetID+".png")
	assert.Equal(t, "https://cdn.test/assets/2026/10/15/"+res.AssetID+".png", res.URL)

	stored, err := assets.GetByID(context.Background(), res.AssetID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusReserved, stored.Status)
	assert.Equal(t, 2, *stored.Width)

	_, err = issuer.ConfirmUpload(context.Background(), res.AssetID)
	assert.ErrorIs(t, err, ErrTransferIncomplete, "nothing stored yet")

	objects.put(stored.Bucket, stored.ObjectKey, []byte{1, 2, 3})
	_, err = issuer.ConfirmUpload(context.Background(), res.AssetID)
	assert.ErrorIs(t, err, ErrTransferIncomplete, "short object")

	objects.put(stored.Bucket, stored.ObjectKey, []byte{1, 2, 3, 4})
	asset, err := issuer.ConfirmUpload(context.Background(), res.AssetID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusReady, asset.Status)
}

func TestUploadIssuerReplaceReusesObjectKey(t *testing.T) {
	existing := models.Asset{ID: "a1", Filename: "old.jpg", Bucket: "assets", ObjectKey: "2025/01/01/a1.jpg", Status: models.AssetStatusReady}
	assets := newFakeAssets(existing)
	issuer := NewUploadIssuer(assets, newFakeObjects())

	res, err := issuer.ReserveUpload(context.Background(), upload.ReserveRequest{
		Filename: "new.jpg", MimeType: "image/jpeg", SizeBytes: 10, ReplaceAssetID: "a1",
	})

	require.NoError(t, err)
	assert.Equal(t, "a1", res.AssetID)
	assert.Equal(t, "https://cdn.test/assets/2025/01/01/a1.jpg", res.URL)
	assert.Contains(t, res.Target.URL, "2025/01/01/a1.jpg")
	updated, _ := assets.GetByID(context.Background(), "a1")
	assert.Equal(t, "new.jpg", updated.Filename)
	assert.Equal(t, models.AssetStatusReady, updated.Status)
}

func TestUploadIssuerReplaceRejectsTypeChange(t *testing.T) {
	existing := models.Asset{ID: "a1", Filename: "old.jpg", MimeType: "image/jpeg", Bucket: "assets", ObjectKey: "2025/01/01/a1.jpg", Status: models.AssetStatusReady}
	assets := newFakeAssets(existing)
	issuer := NewUploadIssuer(assets, newFakeObjects())

	_, err := issuer.ReserveUpload(context.Background(), upload.ReserveRequest{
		Filename: "new.png", MimeType: "image/png", SizeBytes: 10, ReplaceAssetID: "a1",
	})

	require.ErrorIs(t, err, ErrReplaceTypeChange)
	unchanged, _ := assets.GetByID(context.Background(), "a1")
	assert.Equal(t, "old.jpg", unchanged.Filename)
	assert.Equal(t, "image/jpeg", unchanged.MimeType)
}
