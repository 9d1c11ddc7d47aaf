package middleware

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/media/sniffer"
	"github.com/render-tgm/server/internal/storage"
)

const uploadedFileKey = "uploaded_file"

var allowedExtensions = map[string]struct{}{
	".jpeg": {},
	".jpg":  {},
	".png":  {},
	".gif":  {},
}

// ImageUpload plays the multer role: it validates the "image" multipart
// field (presence, size limit, extension, magic bytes) and writes the file
// to the caller's upload directory before the handler runs. Validation
// failures return 400 with nothing written to disk or the database.
func ImageUpload(layout *storage.Layout, maxSizeBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}

		header, err := c.FormFile("image")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "no image uploaded"})
			return
		}

		if header.Size > maxSizeBytes {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "file exceeds the maximum allowed size (5MB)"})
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if _, ok := allowedExtensions[ext]; !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "only image files are allowed (jpeg, jpg, png, gif)"})
			return
		}

		src, err := header.Open()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "could not read uploaded file"})
			return
		}
		defer src.Close()

		head := make([]byte, 512)
		n, err := src.Read(head)
		if err != nil && err != io.EOF {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "could not read uploaded file"})
			return
		}
		if _, err := sniffer.DetectHead(head[:n]); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "only image files are allowed (jpeg, jpg, png, gif)"})
			return
		}
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "could not read uploaded file"})
			return
		}

		diskPath, relativePath, err := layout.AssignUploadPath(user.ID, header.Filename)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "could not store uploaded file"})
			return
		}

		if err := writeFile(src, diskPath); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "could not store uploaded file"})
			return
		}

		c.Set(uploadedFileKey, storage.UploadedFile{
			FileName:     filepath.Base(diskPath),
			DiskPath:     diskPath,
			RelativePath: relativePath,
		})

		c.Next()
	}
}

// UploadedFileFrom returns the file stored by ImageUpload for this
// request.
func UploadedFileFrom(c *gin.Context) (storage.UploadedFile, bool) {
	val, exists := c.Get(uploadedFileKey)
	if !exists {
		return storage.UploadedFile{}, false
	}
	file, ok := val.(storage.UploadedFile)
	return file, ok
}

func writeFile(src io.Reader, diskPath string) error {
	dst, err := os.Create(diskPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		// A half-written original is worse than no file.
		_ = os.Remove(diskPath)
		return err
	}
	return dst.Close()
}
