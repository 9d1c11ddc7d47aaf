package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/enhance"
	"github.com/render-tgm/server/internal/middleware"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/service"
)

type imageResponse struct {
	ID           int64      `json:"id"`
	FileName     string     `json:"nombre_archivo"`
	URL          string     `json:"url"`
	Status       string     `json:"estado"`
	Processed    bool       `json:"procesada"`
	ProcessedURL *string    `json:"url_procesada,omitempty"`
	UploadedAt   time.Time  `json:"fecha_subida"`
	ProcessedAt  *time.Time `json:"fecha_procesado,omitempty"`
}

func toImageResponse(view service.ImageView) imageResponse {
	return imageResponse{
		ID:           view.ID,
		FileName:     view.FileName,
		URL:          view.URL,
		Status:       string(view.Status),
		Processed:    view.Processed,
		ProcessedURL: view.ProcessedURL,
		UploadedAt:   view.UploadedAt,
		ProcessedAt:  view.ProcessedAt,
	}
}

func imageIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("imageId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid image id"})
		return 0, false
	}
	return id, true
}

func (h HandlerSet) ListImages(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	views, err := h.imageService.List(c.Request.Context(), user.ID, requestBaseURL(c))
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("list images failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list images"})
		return
	}

	// The SPA consumes the raw body, so lists go out as bare arrays.
	out := make([]imageResponse, 0, len(views))
	for _, view := range views {
		out = append(out, toImageResponse(view))
	}
	c.JSON(http.StatusOK, out)
}

// UploadImage runs after the upload middleware, which has already
// validated and written the file to its final path.
func (h HandlerSet) UploadImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	file, ok := middleware.UploadedFileFrom(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no image was uploaded"})
		return
	}

	image, err := h.imageService.Upload(c.Request.Context(), user.ID, file)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the image"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "image uploaded successfully",
		"data": gin.H{
			"id":             image.ID,
			"nombre_archivo": image.FileName,
			"url":            h.layout.PublicURL(requestBaseURL(c), image.OriginalPath),
		},
	})
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID, ok := imageIDParam(c)
	if !ok {
		return
	}

	if err := h.imageService.Delete(c.Request.Context(), user.ID, imageID); err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "image not found"})
			return
		}
		h.log.Error().Err(err).Int64("image_id", imageID).Msg("delete image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not delete the image"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "image deleted successfully"})
}

func (h HandlerSet) ProcessImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID, ok := imageIDParam(c)
	if !ok {
		return
	}

	result, err := h.imageService.Process(c.Request.Context(), user.ID, imageID, requestBaseURL(c))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrImageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "image not found"})
		case errors.Is(err, service.ErrSourceFileMissing):
			c.JSON(http.StatusNotFound, gin.H{"message": "original file is missing from storage"})
		case errors.Is(err, enhance.ErrEnhancementFailed):
			h.log.Error().Err(err).Int64("image_id", imageID).Msg("enhancement failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "image processing failed"})
		default:
			h.log.Error().Err(err).Int64("image_id", imageID).Msg("process image failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "image processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "image processed successfully",
		"processedPath": result.ProcessedPath,
		"url_procesada": result.URL,
	})
}

func (h HandlerSet) DownloadProcessedImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID, ok := imageIDParam(c)
	if !ok {
		return
	}

	path, err := h.imageService.DownloadPath(c.Request.Context(), user.ID, imageID)
	if err != nil {
		if errors.Is(err, service.ErrProcessedNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "processed image not found"})
			return
		}
		h.log.Error().Err(err).Int64("image_id", imageID).Msg("download failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not download the image"})
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}
