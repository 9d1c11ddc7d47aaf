package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	uploadsDir   = "uploads"
	processedDir = "processed"
)

// UploadedFile describes a multipart upload that has been validated and
// written to its assigned location before the handler runs.
type UploadedFile struct {
	FileName     string
	DiskPath     string
	RelativePath string
}

// Layout maps (user, image) to on-disk locations and public URLs. It
// creates per-user directories as needed but never touches image bytes.
// All relative paths use forward slashes so they double as URL suffixes.
type Layout struct {
	root string
	log  zerolog.Logger

	now func() time.Time
}

func NewLayout(root string, log zerolog.Logger) *Layout {
	return &Layout{
		root: root,
		log:  log,
		now:  time.Now,
	}
}

// AssignUploadPath picks a collision-resistant location for a new original:
// uploads/{userID}/{userID}_{nanotimestamp}{ext}. The user directory and
// its processed/ subdirectory are created if absent; MkdirAll makes the
// creation idempotent under concurrent uploads for the same user.
func (l *Layout) AssignUploadPath(userID int64, originalFilename string) (diskPath, relativePath string, err error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	name := fmt.Sprintf("%d_%d%s", userID, l.now().UnixNano(), ext)

	userDir := filepath.Join(l.root, uploadsDir, fmt.Sprintf("%d", userID))
	if err := os.MkdirAll(filepath.Join(userDir, processedDir), 0o755); err != nil {
		return "", "", fmt.Errorf("create user directory: %w", err)
	}

	relativePath = fmt.Sprintf("%s/%d/%s", uploadsDir, userID, name)
	return filepath.Join(userDir, name), relativePath, nil
}

// AssignProcessedPath picks the output location for an enhancement run:
// uploads/{userID}/processed/processed_{nanotimestamp}{ext}, with the
// extension taken from the original filename.
func (l *Layout) AssignProcessedPath(userID int64, originalFilename string) (diskPath, relativePath string, err error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	name := fmt.Sprintf("processed_%d%s", l.now().UnixNano(), ext)

	dir := filepath.Join(l.root, uploadsDir, fmt.Sprintf("%d", userID), processedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create processed directory: %w", err)
	}

	relativePath = fmt.Sprintf("%s/%d/%s/%s", uploadsDir, userID, processedDir, name)
	return filepath.Join(dir, name), relativePath, nil
}

// ProfilePhotoDir materializes uploads/profile and returns its disk path.
func (l *Layout) ProfilePhotoDir() (string, error) {
	dir := filepath.Join(l.root, uploadsDir, "profile")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create profile directory: %w", err)
	}
	return dir, nil
}

// DiskPath resolves a stored relative path back to its filesystem
// location.
func (l *Layout) DiskPath(relativePath string) string {
	return filepath.Join(l.root, filepath.FromSlash(relativePath))
}

// PublicURL joins the per-request base URL with a stored relative path.
func (l *Layout) PublicURL(baseURL, relativePath string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + relativePath
}

// UploadsRoot is the directory served statically under /uploads.
func (l *Layout) UploadsRoot() string {
	return filepath.Join(l.root, uploadsDir)
}

// DeletePhysical removes the files behind the given relative paths. It is
// best-effort: a missing file counts as already deleted, any other failure
// is logged and collected, and one failure never stops the rest. The
// returned slice holds the paths that could not be removed.
func (l *Layout) DeletePhysical(relativePaths []string) []string {
	var failed []string
	for _, rel := range relativePaths {
		if rel == "" {
			continue
		}
		if err := os.Remove(l.DiskPath(rel)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			l.log.Warn().Err(err).Str("path", rel).Msg("could not delete file")
			failed = append(failed, rel)
		}
	}
	return failed
}
