package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/render-tgm/server/internal/enhance"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/storage"
)

// ErrSourceFileMissing means the database record exists but the original
// file is gone from disk. Distinct from a plain not-found so the client
// can tell a stale record from a bad id.
var ErrSourceFileMissing = errors.New("image file not found on disk")

// ErrProcessedNotFound is returned by Download when no processed artifact
// exists for the caller's image.
var ErrProcessedNotFound = errors.New("processed image not found")

// ImageStore is the slice of the image repository the pipeline needs.
type ImageStore interface {
	Create(ctx context.Context, userID int64, fileName, originalPath string) (models.Image, error)
	GetByOwner(ctx context.Context, userID, imageID int64) (models.Image, error)
	ListByOwner(ctx context.Context, userID int64) ([]models.Image, error)
	MarkProcessed(ctx context.Context, userID, imageID int64, processedPath string, processedAt time.Time) error
	Delete(ctx context.Context, userID, imageID int64) ([]string, error)
}

// ImageView is an image record with its public URLs resolved against the
// requesting host.
type ImageView struct {
	models.Image
	URL          string
	ProcessedURL *string
}

// ProcessResult reports a successful enhancement run.
type ProcessResult struct {
	ProcessedPath string
	URL           string
}

// ImageService orchestrates the upload/process/delete/download pipeline:
// path assignment through the layout, enhancement through the two-tier
// chain, metadata through the store. Processing of a given image is
// serialized by a per-image mutex so concurrent reprocess calls cannot
// orphan each other's output.
type ImageService struct {
	store    ImageStore
	layout   *storage.Layout
	enhancer enhance.Enhancer
	backup   *storage.Backup
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*imageLock
}

// imageLock is refcounted so the entry can be dropped from the map once
// the last holder releases it.
type imageLock struct {
	mu   sync.Mutex
	refs int
}

func NewImageService(store ImageStore, layout *storage.Layout, enhancer enhance.Enhancer, backup *storage.Backup, log zerolog.Logger) *ImageService {
	return &ImageService{
		store:    store,
		layout:   layout,
		enhancer: enhancer,
		backup:   backup,
		log:      log,
		locks:    make(map[int64]*imageLock),
	}
}

// Upload records an already-validated, already-written file. The upload
// middleware owns the bytes on disk; this only creates the metadata row.
func (s *ImageService) Upload(ctx context.Context, userID int64, file storage.UploadedFile) (models.Image, error) {
	image, err := s.store.Create(ctx, userID, file.FileName, file.RelativePath)
	if err != nil {
		// The file was written before the insert failed; remove it
		// instead of leaving an unreferenced original behind.
		s.layout.DeletePhysical([]string{file.RelativePath})
		return models.Image{}, fmt.Errorf("save image record: %w", err)
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("image_id", image.ID).
		Str("path", image.OriginalPath).
		Msg("image uploaded")

	return image, nil
}

func (s *ImageService) List(ctx context.Context, userID int64, baseURL string) ([]ImageView, error) {
	images, err := s.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ImageView, 0, len(images))
	for _, img := range images {
		view := ImageView{
			Image: img,
			URL:   s.layout.PublicURL(baseURL, img.OriginalPath),
		}
		if img.Processed && img.ProcessedPath != nil {
			url := s.layout.PublicURL(baseURL, *img.ProcessedPath)
			view.ProcessedURL = &url
		}
		views = append(views, view)
	}
	return views, nil
}

// Process runs the enhancement chain over the image's original and
// records the new processed artifact. Reprocessing overwrites the record's
// processed path and best-effort deletes the superseded file. On total
// enhancement failure the record is left untouched.
func (s *ImageService) Process(ctx context.Context, userID, imageID int64, baseURL string) (ProcessResult, error) {
	unlock := s.lockImage(imageID)
	defer unlock()

	image, err := s.store.GetByOwner(ctx, userID, imageID)
	if err != nil {
		return ProcessResult{}, err
	}

	originalDisk := s.layout.DiskPath(image.OriginalPath)
	if _, err := os.Stat(originalDisk); err != nil {
		return ProcessResult{}, ErrSourceFileMissing
	}

	processedDisk, processedRel, err := s.layout.AssignProcessedPath(userID, image.FileName)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("assign processed path: %w", err)
	}

	if err := s.enhancer.Enhance(ctx, originalDisk, processedDisk); err != nil {
		return ProcessResult{}, err
	}

	processedAt := time.Now()
	if err := s.store.MarkProcessed(ctx, userID, imageID, processedRel, processedAt); err != nil {
		return ProcessResult{}, fmt.Errorf("record processed image: %w", err)
	}

	if image.ProcessedPath != nil && *image.ProcessedPath != processedRel {
		s.layout.DeletePhysical([]string{*image.ProcessedPath})
	}

	s.mirrorProcessed(processedDisk)

	s.log.Info().
		Int64("user_id", userID).
		Int64("image_id", imageID).
		Str("path", processedRel).
		Msg("image processed")

	return ProcessResult{
		ProcessedPath: processedRel,
		URL:           s.layout.PublicURL(baseURL, processedRel),
	}, nil
}

// Delete removes the record first, then the physical files. Physical
// failures are logged by the layout and never fail the request; a file
// already gone counts as deleted.
func (s *ImageService) Delete(ctx context.Context, userID, imageID int64) error {
	paths, err := s.store.Delete(ctx, userID, imageID)
	if err != nil {
		return err
	}

	if failed := s.layout.DeletePhysical(paths); len(failed) > 0 {
		s.log.Warn().
			Int64("image_id", imageID).
			Strs("paths", failed).
			Msg("physical cleanup incomplete")
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("image_id", imageID).
		Msg("image deleted")

	return nil
}

// DownloadPath returns the on-disk location of the processed artifact, or
// ErrProcessedNotFound when the image has none (including when the record
// itself is absent, so existence is never leaked across owners).
func (s *ImageService) DownloadPath(ctx context.Context, userID, imageID int64) (string, error) {
	image, err := s.store.GetByOwner(ctx, userID, imageID)
	if err != nil {
		return "", ErrProcessedNotFound
	}

	if !image.Processed || image.ProcessedPath == nil {
		return "", ErrProcessedNotFound
	}

	return s.layout.DiskPath(*image.ProcessedPath), nil
}

// lockImage serializes processing per image id. The returned release
// func drops the map entry once no goroutine holds or awaits the lock,
// so the map stays bounded by in-flight work.
func (s *ImageService) lockImage(imageID int64) func() {
	s.mu.Lock()
	lock, ok := s.locks[imageID]
	if !ok {
		lock = &imageLock{}
		s.locks[imageID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, imageID)
		}
		s.mu.Unlock()
	}
}

// mirrorProcessed copies the artifact to the configured object-storage
// bucket. Strictly best-effort: the mirror being down must not fail a
// processing request.
func (s *ImageService) mirrorProcessed(diskPath string) {
	if s.backup == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key, err := s.backup.Mirror(ctx, diskPath, "")
	if err != nil {
		s.log.Warn().Err(err).Str("path", diskPath).Msg("backup mirror failed")
		return
	}
	s.log.Debug().Str("object_key", key).Msg("processed artifact mirrored")
}
