package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/render-tgm/server/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

// ImageRepository persists image metadata. Every query is filtered by the
// owning user id; there is no way to reach another user's records through
// this type.
type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

func (r *ImageRepository) Create(ctx context.Context, userID int64, fileName, originalPath string) (models.Image, error) {
	const query = `
		INSERT INTO images (user_id, file_name, original_path, status, processed, uploaded_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING id, uploaded_at
	`

	image := models.Image{
		UserID:       userID,
		FileName:     fileName,
		OriginalPath: originalPath,
		Status:       models.ImageStatusPending,
	}

	row := r.pool.QueryRow(ctx, query, userID, fileName, originalPath, models.ImageStatusPending)
	if err := row.Scan(&image.ID, &image.UploadedAt); err != nil {
		return models.Image{}, err
	}
	return image, nil
}

func (r *ImageRepository) GetByOwner(ctx context.Context, userID, imageID int64) (models.Image, error) {
	const query = `
		SELECT id, user_id, file_name, original_path, status, processed,
		       processed_path, uploaded_at, processed_at
		FROM images
		WHERE id = $1 AND user_id = $2
	`

	row := r.pool.QueryRow(ctx, query, imageID, userID)
	var image models.Image
	if err := row.Scan(
		&image.ID,
		&image.UserID,
		&image.FileName,
		&image.OriginalPath,
		&image.Status,
		&image.Processed,
		&image.ProcessedPath,
		&image.UploadedAt,
		&image.ProcessedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}
	return image, nil
}

func (r *ImageRepository) ListByOwner(ctx context.Context, userID int64) ([]models.Image, error) {
	const query = `
		SELECT id, user_id, file_name, original_path, status, processed,
		       processed_path, uploaded_at, processed_at
		FROM images
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var image models.Image
		if err := rows.Scan(
			&image.ID,
			&image.UserID,
			&image.FileName,
			&image.OriginalPath,
			&image.Status,
			&image.Processed,
			&image.ProcessedPath,
			&image.UploadedAt,
			&image.ProcessedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// MarkProcessed records a successful enhancement. Reprocessing simply
// overwrites the previous processed path.
func (r *ImageRepository) MarkProcessed(ctx context.Context, userID, imageID int64, processedPath string, processedAt time.Time) error {
	const query = `
		UPDATE images
		SET processed = TRUE,
		    status = $4,
		    processed_path = $3,
		    processed_at = $5
		WHERE id = $1 AND user_id = $2
	`
	cmd, err := r.pool.Exec(ctx, query, imageID, userID, processedPath, models.ImageStatusReady, processedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

// Delete removes the record and returns the relative paths whose physical
// files the caller should clean up.
func (r *ImageRepository) Delete(ctx context.Context, userID, imageID int64) ([]string, error) {
	const query = `
		DELETE FROM images
		WHERE id = $1 AND user_id = $2
		RETURNING original_path, processed_path
	`

	row := r.pool.QueryRow(ctx, query, imageID, userID)
	var (
		originalPath  string
		processedPath *string
	)
	if err := row.Scan(&originalPath, &processedPath); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}

	paths := []string{originalPath}
	if processedPath != nil {
		paths = append(paths, *processedPath)
	}
	return paths, nil
}

// ListProcessedPaths returns every processed_path currently referenced by
// any record. The orphan sweep uses it to tell live artifacts from
// leftovers.
func (r *ImageRepository) ListProcessedPaths(ctx context.Context) ([]string, error) {
	const query = `
		SELECT processed_path FROM images WHERE processed_path IS NOT NULL
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
