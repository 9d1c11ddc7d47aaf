package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/media/sniffer"
	"github.com/render-tgm/server/internal/repository"
)

func (h HandlerSet) GetProfile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	resp := toUserResponse(user)
	if user.ProfilePhoto != nil {
		url := h.layout.PublicURL(requestBaseURL(c), *user.ProfilePhoto)
		resp.ProfilePhoto = &url
	}
	c.JSON(http.StatusOK, resp)
}

type updateProfileRequest struct {
	Name  string `json:"nombre" binding:"required"`
	Email string `json:"correo" binding:"required,email"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "name and email are required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.users.UpdateProfile(c.Request.Context(), user.ID, req.Name, email); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			c.JSON(http.StatusBadRequest, gin.H{"message": "email is already registered"})
		case errors.Is(err, repository.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		default:
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("update profile failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not update the profile"})
		}
		return
	}
	h.userCache.Invalidate(c.Request.Context(), user.ID)

	user.Name = req.Name
	user.Email = email
	c.JSON(http.StatusOK, gin.H{
		"message": "profile updated successfully",
		"user":    toUserResponse(user),
	})
}

// profilePhotoMaxBytes caps avatar uploads well below the image pipeline
// limit.
const profilePhotoMaxBytes = 2 << 20

func (h HandlerSet) UpdateProfilePhoto(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no photo was uploaded"})
		return
	}
	if header.Size > profilePhotoMaxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"message": "photo exceeds the 2MB limit"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "could not read the photo"})
		return
	}
	defer src.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(src, head)
	if _, err := sniffer.DetectHead(head[:n]); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "only JPEG, PNG and GIF images are allowed"})
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not read the photo"})
		return
	}

	dir, err := h.layout.ProfilePhotoDir()
	if err != nil {
		h.log.Error().Err(err).Msg("profile photo dir unavailable")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the photo"})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := fmt.Sprintf("%d_%d%s", user.ID, time.Now().UnixNano(), ext)
	diskPath := filepath.Join(dir, name)
	relativePath := "uploads/profile/" + name

	dst, err := os.Create(diskPath)
	if err != nil {
		h.log.Error().Err(err).Str("path", diskPath).Msg("create photo failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the photo"})
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(diskPath)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the photo"})
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(diskPath)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the photo"})
		return
	}

	previous, err := h.users.UpdateProfilePhoto(c.Request.Context(), user.ID, relativePath)
	if err != nil {
		os.Remove(diskPath)
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("update photo failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not save the photo"})
		return
	}
	h.userCache.Invalidate(c.Request.Context(), user.ID)

	if previous != nil {
		h.layout.DeletePhysical([]string{*previous})
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "profile photo updated successfully",
		"foto_perfil": h.layout.PublicURL(requestBaseURL(c), relativePath),
	})
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list users"})
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	c.JSON(http.StatusOK, out)
}
