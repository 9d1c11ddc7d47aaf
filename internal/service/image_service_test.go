package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/render-tgm/server/internal/enhance"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/storage"
)

// fakeImageStore keeps records in a map, scoped by owner the way the real
// repository scopes its queries.
type fakeImageStore struct {
	nextID int64
	images map[int64]models.Image
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{images: make(map[int64]models.Image)}
}

func (f *fakeImageStore) Create(_ context.Context, userID int64, fileName, originalPath string) (models.Image, error) {
	f.nextID++
	img := models.Image{
		ID:           f.nextID,
		UserID:       userID,
		FileName:     fileName,
		OriginalPath: originalPath,
		Status:       models.ImageStatusPending,
		UploadedAt:   time.Now(),
	}
	f.images[img.ID] = img
	return img, nil
}

func (f *fakeImageStore) GetByOwner(_ context.Context, userID, imageID int64) (models.Image, error) {
	img, ok := f.images[imageID]
	if !ok || img.UserID != userID {
		return models.Image{}, repository.ErrImageNotFound
	}
	return img, nil
}

func (f *fakeImageStore) ListByOwner(_ context.Context, userID int64) ([]models.Image, error) {
	var out []models.Image
	for _, img := range f.images {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeImageStore) MarkProcessed(_ context.Context, userID, imageID int64, processedPath string, processedAt time.Time) error {
	img, ok := f.images[imageID]
	if !ok || img.UserID != userID {
		return repository.ErrImageNotFound
	}
	img.Processed = true
	img.Status = models.ImageStatusReady
	img.ProcessedPath = &processedPath
	img.ProcessedAt = &processedAt
	f.images[imageID] = img
	return nil
}

func (f *fakeImageStore) Delete(_ context.Context, userID, imageID int64) ([]string, error) {
	img, ok := f.images[imageID]
	if !ok || img.UserID != userID {
		return nil, repository.ErrImageNotFound
	}
	delete(f.images, imageID)
	paths := []string{img.OriginalPath}
	if img.ProcessedPath != nil {
		paths = append(paths, *img.ProcessedPath)
	}
	return paths, nil
}

// copyEnhancer copies input to output; failEnhancer always fails.
type copyEnhancer struct{}

func (copyEnhancer) Enhance(_ context.Context, inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

type failEnhancer struct{}

func (failEnhancer) Enhance(_ context.Context, _, _ string) error {
	return enhance.ErrEnhancementFailed
}

func newTestService(t *testing.T, enhancer enhance.Enhancer) (*ImageService, *fakeImageStore, *storage.Layout) {
	t.Helper()
	layout := storage.NewLayout(t.TempDir(), zerolog.Nop())
	store := newFakeImageStore()
	return NewImageService(store, layout, enhancer, nil, zerolog.Nop()), store, layout
}

func uploadTestImage(t *testing.T, svc *ImageService, layout *storage.Layout, userID int64) models.Image {
	t.Helper()
	diskPath, relativePath, err := layout.AssignUploadPath(userID, "photo.png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(diskPath, []byte("original-bytes"), 0o644))

	img, err := svc.Upload(context.Background(), userID, storage.UploadedFile{
		FileName:     "photo.png",
		DiskPath:     diskPath,
		RelativePath: relativePath,
	})
	require.NoError(t, err)
	return img
}

func TestProcessHappyPath(t *testing.T) {
	svc, store, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)

	result, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	require.NoError(t, err)

	assert.Contains(t, result.ProcessedPath, "uploads/7/processed/processed_")
	assert.Equal(t, "http://localhost:5000/"+result.ProcessedPath, result.URL)
	assert.FileExists(t, layout.DiskPath(result.ProcessedPath))

	stored := store.images[img.ID]
	assert.True(t, stored.Processed)
	assert.Equal(t, models.ImageStatusReady, stored.Status)
	require.NotNil(t, stored.ProcessedPath)
	assert.Equal(t, result.ProcessedPath, *stored.ProcessedPath)
}

func TestProcessWrongOwner(t *testing.T) {
	svc, _, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)

	_, err := svc.Process(context.Background(), 8, img.ID, "http://localhost:5000")
	assert.ErrorIs(t, err, repository.ErrImageNotFound)
}

func TestProcessMissingSourceFile(t *testing.T) {
	svc, _, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)
	require.NoError(t, os.Remove(layout.DiskPath(img.OriginalPath)))

	_, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	assert.ErrorIs(t, err, ErrSourceFileMissing)
}

func TestProcessEnhancementFailureLeavesRecordUntouched(t *testing.T) {
	svc, store, layout := newTestService(t, failEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)

	_, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	assert.ErrorIs(t, err, enhance.ErrEnhancementFailed)

	stored := store.images[img.ID]
	assert.False(t, stored.Processed)
	assert.Equal(t, models.ImageStatusPending, stored.Status)
	assert.Nil(t, stored.ProcessedPath)
}

func TestReprocessReplacesPreviousArtifact(t *testing.T) {
	svc, _, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)

	first, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	require.NoError(t, err)
	second, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	require.NoError(t, err)

	require.NotEqual(t, first.ProcessedPath, second.ProcessedPath)
	assert.NoFileExists(t, layout.DiskPath(first.ProcessedPath), "superseded artifact must be removed")
	assert.FileExists(t, layout.DiskPath(second.ProcessedPath))
}

func TestDeleteRemovesRecordAndFiles(t *testing.T) {
	svc, store, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)
	result, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 7, img.ID))

	assert.Empty(t, store.images)
	assert.NoFileExists(t, layout.DiskPath(img.OriginalPath))
	assert.NoFileExists(t, layout.DiskPath(result.ProcessedPath))
}

func TestDeleteUnknownImage(t *testing.T) {
	svc, _, _ := newTestService(t, copyEnhancer{})
	err := svc.Delete(context.Background(), 7, 99)
	assert.ErrorIs(t, err, repository.ErrImageNotFound)
}

func TestDownloadPath(t *testing.T) {
	svc, _, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)

	// Unprocessed image has nothing to download.
	_, err := svc.DownloadPath(context.Background(), 7, img.ID)
	assert.ErrorIs(t, err, ErrProcessedNotFound)

	result, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
	require.NoError(t, err)

	path, err := svc.DownloadPath(context.Background(), 7, img.ID)
	require.NoError(t, err)
	assert.Equal(t, layout.DiskPath(result.ProcessedPath), path)

	// Another owner's lookup must not reveal the image exists.
	_, err = svc.DownloadPath(context.Background(), 8, img.ID)
	assert.ErrorIs(t, err, ErrProcessedNotFound)
}

func TestUploadRollsBackFileOnStoreFailure(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), zerolog.Nop())
	svc := NewImageService(erroringStore{}, layout, copyEnhancer{}, nil, zerolog.Nop())

	diskPath, relativePath, err := layout.AssignUploadPath(7, "photo.png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(diskPath, []byte("bytes"), 0o644))

	_, err = svc.Upload(context.Background(), 7, storage.UploadedFile{
		FileName:     "photo.png",
		DiskPath:     diskPath,
		RelativePath: relativePath,
	})
	require.Error(t, err)
	assert.NoFileExists(t, diskPath, "orphaned upload must be removed when the insert fails")
}

func TestProcessReleasesPerImageLocks(t *testing.T) {
	svc, _, layout := newTestService(t, copyEnhancer{})
	img := uploadTestImage(t, svc, layout, 7)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Process(context.Background(), 7, img.ID, "http://localhost:5000")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.locks, "lock entries must be shed once processing finishes")
}

type erroringStore struct{}

func (erroringStore) Create(context.Context, int64, string, string) (models.Image, error) {
	return models.Image{}, errors.New("insert failed")
}
func (erroringStore) GetByOwner(context.Context, int64, int64) (models.Image, error) {
	return models.Image{}, repository.ErrImageNotFound
}
func (erroringStore) ListByOwner(context.Context, int64) ([]models.Image, error) { return nil, nil }
func (erroringStore) MarkProcessed(context.Context, int64, int64, string, time.Time) error {
	return repository.ErrImageNotFound
}
func (erroringStore) Delete(context.Context, int64, int64) ([]string, error) {
	return nil, repository.ErrImageNotFound
}
