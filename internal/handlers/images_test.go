package handlers

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/render-tgm/server/internal/enhance"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/service"
	"github.com/render-tgm/server/internal/storage"
)

// memImageStore satisfies the image service's store with a map, scoped by
// owner like the SQL queries are.
type memImageStore struct {
	nextID int64
	images map[int64]models.Image
}

func newMemImageStore() *memImageStore {
	return &memImageStore{images: make(map[int64]models.Image)}
}

func (m *memImageStore) Create(_ context.Context, userID int64, fileName, originalPath string) (models.Image, error) {
	m.nextID++
	img := models.Image{
		ID:           m.nextID,
		UserID:       userID,
		FileName:     fileName,
		OriginalPath: originalPath,
		Status:       models.ImageStatusPending,
		UploadedAt:   time.Now(),
	}
	m.images[img.ID] = img
	return img, nil
}

func (m *memImageStore) GetByOwner(_ context.Context, userID, imageID int64) (models.Image, error) {
	img, ok := m.images[imageID]
	if !ok || img.UserID != userID {
		return models.Image{}, repository.ErrImageNotFound
	}
	return img, nil
}

func (m *memImageStore) ListByOwner(_ context.Context, userID int64) ([]models.Image, error) {
	var out []models.Image
	for _, img := range m.images {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *memImageStore) MarkProcessed(_ context.Context, userID, imageID int64, processedPath string, processedAt time.Time) error {
	img, err := m.GetByOwner(context.Background(), userID, imageID)
	if err != nil {
		return err
	}
	img.Processed = true
	img.Status = models.ImageStatusReady
	img.ProcessedPath = &processedPath
	img.ProcessedAt = &processedAt
	m.images[imageID] = img
	return nil
}

func (m *memImageStore) Delete(_ context.Context, userID, imageID int64) ([]string, error) {
	img, err := m.GetByOwner(context.Background(), userID, imageID)
	if err != nil {
		return nil, err
	}
	delete(m.images, imageID)
	paths := []string{img.OriginalPath}
	if img.ProcessedPath != nil {
		paths = append(paths, *img.ProcessedPath)
	}
	return paths, nil
}

type passthroughEnhancer struct{}

func (passthroughEnhancer) Enhance(_ context.Context, inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

type brokenEnhancer struct{}

func (brokenEnhancer) Enhance(context.Context, string, string) error {
	return enhance.ErrEnhancementFailed
}

func newImageHandlers(t *testing.T, enhancer enhance.Enhancer) (HandlerSet, *memImageStore, *storage.Layout) {
	t.Helper()
	h, _, layout := newTestHandlers(t, newFakeUserStore())
	store := newMemImageStore()
	h.imageService = service.NewImageService(store, layout, enhancer, nil, h.log)
	return h, store, layout
}

func seedImage(t *testing.T, h HandlerSet, layout *storage.Layout, userID int64, fileName string) models.Image {
	t.Helper()
	diskPath, relativePath, err := layout.AssignUploadPath(userID, fileName)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(diskPath, []byte("image-bytes"), 0o644))

	img, err := h.imageService.Upload(context.Background(), userID, storage.UploadedFile{
		FileName:     fileName,
		DiskPath:     diskPath,
		RelativePath: relativePath,
	})
	require.NoError(t, err)
	return img
}

func imageParams(id string) gin.Params {
	return gin.Params{{Key: "imageId", Value: id}}
}

var imageOwner = models.User{ID: 7, Name: "Ana", Email: "ana@example.com", Role: models.RoleUser}

func TestListImagesIsBareArray(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	seedImage(t, h, layout, imageOwner.ID, "a.png")
	processed := seedImage(t, h, layout, imageOwner.ID, "b.png")
	_, err := h.imageService.Process(context.Background(), imageOwner.ID, processed.ID, "http://api.test")
	require.NoError(t, err)

	c, w := testRequest(t, imageOwner, http.MethodGet, "/api/images", nil)
	h.ListImages(c)

	requireStatus(t, w, http.StatusOK)
	records := decodeArray(t, w)
	require.Len(t, records, 2)

	byName := map[string]map[string]any{}
	for _, rec := range records {
		byName[rec["nombre_archivo"].(string)] = rec
	}

	pending := byName["a.png"]
	require.NotNil(t, pending)
	assert.Equal(t, false, pending["procesada"])
	assert.Equal(t, "pending", pending["estado"])
	assert.Contains(t, pending["url"], "http://")
	_, hasProcessedURL := pending["url_procesada"]
	assert.False(t, hasProcessedURL, "unprocessed records must omit url_procesada")

	ready := byName["b.png"]
	require.NotNil(t, ready)
	assert.Equal(t, true, ready["procesada"])
	assert.NotEmpty(t, ready["url_procesada"])
}

// The /results route is served by the same handler, so unprocessed
// uploads show up there too, just without a processed URL.
func TestResultsIncludeUnprocessedImages(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	seedImage(t, h, layout, imageOwner.ID, "fresh.png")

	c, w := testRequest(t, imageOwner, http.MethodGet, "/api/images/results", nil)
	h.ListImages(c)

	requireStatus(t, w, http.StatusOK)
	records := decodeArray(t, w)
	require.Len(t, records, 1)
	_, hasProcessedURL := records[0]["url_procesada"]
	assert.False(t, hasProcessedURL)
}

func TestListImagesScopedToOwner(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	seedImage(t, h, layout, 99, "other.png")

	c, w := testRequest(t, imageOwner, http.MethodGet, "/api/images", nil)
	h.ListImages(c)

	requireStatus(t, w, http.StatusOK)
	assert.Empty(t, decodeArray(t, w))
}

func TestUploadImageRespondsOK(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	diskPath, relativePath, err := layout.AssignUploadPath(imageOwner.ID, "up.png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(diskPath, []byte("image-bytes"), 0o644))

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/upload", nil)
	c.Set("uploaded_file", storage.UploadedFile{
		FileName:     "up.png",
		DiskPath:     diskPath,
		RelativePath: relativePath,
	})
	h.UploadImage(c)

	requireStatus(t, w, http.StatusOK)
	body := decodeObject(t, w)
	assert.Equal(t, "image uploaded successfully", body["message"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "up.png", data["nombre_archivo"])
	assert.NotEmpty(t, data["url"])
}

func TestUploadImageWithoutFile(t *testing.T) {
	h, _, _ := newImageHandlers(t, passthroughEnhancer{})

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/upload", nil)
	h.UploadImage(c)

	requireStatus(t, w, http.StatusBadRequest)
}

func TestProcessImageNotFound(t *testing.T) {
	h, _, _ := newImageHandlers(t, passthroughEnhancer{})

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/42/process", nil)
	c.Params = imageParams("42")
	h.ProcessImage(c)

	requireStatus(t, w, http.StatusNotFound)
	assert.Equal(t, "image not found", decodeObject(t, w)["message"])
}

func TestProcessImageMissingSourceFile(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	img := seedImage(t, h, layout, imageOwner.ID, "gone.png")
	require.NoError(t, os.Remove(layout.DiskPath(img.OriginalPath)))

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/1/process", nil)
	c.Params = imageParams("1")
	h.ProcessImage(c)

	requireStatus(t, w, http.StatusNotFound)
	assert.Equal(t, "original file is missing from storage", decodeObject(t, w)["message"])
}

func TestProcessImageEnhancementFailure(t *testing.T) {
	h, _, layout := newImageHandlers(t, brokenEnhancer{})
	seedImage(t, h, layout, imageOwner.ID, "bad.png")

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/1/process", nil)
	c.Params = imageParams("1")
	h.ProcessImage(c)

	requireStatus(t, w, http.StatusInternalServerError)
	assert.Equal(t, "image processing failed", decodeObject(t, w)["message"])
}

func TestProcessImageSuccessBody(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	seedImage(t, h, layout, imageOwner.ID, "ok.png")

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/1/process", nil)
	c.Params = imageParams("1")
	h.ProcessImage(c)

	requireStatus(t, w, http.StatusOK)
	body := decodeObject(t, w)
	assert.Equal(t, "image processed successfully", body["message"])
	assert.NotEmpty(t, body["processedPath"])
	assert.NotEmpty(t, body["url_procesada"])
}

func TestProcessImageRejectsBadID(t *testing.T) {
	h, _, _ := newImageHandlers(t, passthroughEnhancer{})

	c, w := testRequest(t, imageOwner, http.MethodPost, "/api/images/abc/process", nil)
	c.Params = imageParams("abc")
	h.ProcessImage(c)

	requireStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "invalid image id", decodeObject(t, w)["message"])
}

func TestDeleteImageNotFound(t *testing.T) {
	h, _, _ := newImageHandlers(t, passthroughEnhancer{})

	c, w := testRequest(t, imageOwner, http.MethodDelete, "/api/images/5", nil)
	c.Params = imageParams("5")
	h.DeleteImage(c)

	requireStatus(t, w, http.StatusNotFound)
	assert.Equal(t, "image not found", decodeObject(t, w)["message"])
}

func TestDeleteImageRemovesRecord(t *testing.T) {
	h, store, layout := newImageHandlers(t, passthroughEnhancer{})
	img := seedImage(t, h, layout, imageOwner.ID, "del.png")

	c, w := testRequest(t, imageOwner, http.MethodDelete, "/api/images/1", nil)
	c.Params = imageParams("1")
	h.DeleteImage(c)

	requireStatus(t, w, http.StatusOK)
	_, exists := store.images[img.ID]
	assert.False(t, exists)
}

func TestDownloadUnprocessedImage(t *testing.T) {
	h, _, layout := newImageHandlers(t, passthroughEnhancer{})
	seedImage(t, h, layout, imageOwner.ID, "raw.png")

	c, w := testRequest(t, imageOwner, http.MethodGet, "/api/images/1/download", nil)
	c.Params = imageParams("1")
	h.DownloadProcessedImage(c)

	requireStatus(t, w, http.StatusNotFound)
	assert.Equal(t, "processed image not found", decodeObject(t, w)["message"])
}
