package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
)

type friendResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"nombre"`
	ProfilePhoto *string `json:"foto_perfil,omitempty"`
	Status       *string `json:"estado,omitempty"`
}

func (h HandlerSet) toFriendResponses(c *gin.Context, infos []models.FriendInfo) []friendResponse {
	base := requestBaseURL(c)
	out := make([]friendResponse, 0, len(infos))
	for _, info := range infos {
		resp := friendResponse{ID: info.UserID, Name: info.Name}
		if info.ProfilePhoto != nil {
			url := h.layout.PublicURL(base, *info.ProfilePhoto)
			resp.ProfilePhoto = &url
		}
		if info.Status != nil {
			status := string(*info.Status)
			resp.Status = &status
		}
		out = append(out, resp)
	}
	return out
}

func friendIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("friendId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return 0, false
	}
	return id, true
}

func (h HandlerSet) SearchUsers(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "a search term is required"})
		return
	}

	infos, err := h.friends.Search(c.Request.Context(), user.ID, query)
	if err != nil {
		h.log.Error().Err(err).Msg("user search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not search users"})
		return
	}
	c.JSON(http.StatusOK, h.toFriendResponses(c, infos))
}

func (h HandlerSet) ListFriends(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	infos, err := h.friends.ListFriends(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("list friends failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list friends"})
		return
	}
	c.JSON(http.StatusOK, h.toFriendResponses(c, infos))
}

// ListFriendRequests returns the pending requests addressed to the
// authenticated user.
func (h HandlerSet) ListFriendRequests(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	infos, err := h.friends.ListPending(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("list friend requests failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list friend requests"})
		return
	}
	c.JSON(http.StatusOK, h.toFriendResponses(c, infos))
}

func (h HandlerSet) SendFriendRequest(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	friendID, ok := friendIDParam(c)
	if !ok {
		return
	}
	if friendID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"message": "you cannot send a request to yourself"})
		return
	}

	if _, err := h.users.GetByID(c.Request.Context(), friendID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("friend lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not send the request"})
		return
	}

	if err := h.friends.CreateRequest(c.Request.Context(), user.ID, friendID); err != nil {
		if errors.Is(err, repository.ErrFriendshipExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "a friendship or request already exists"})
			return
		}
		h.log.Error().Err(err).Msg("create friend request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not send the request"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "friend request sent"})
}

func (h HandlerSet) AcceptFriendRequest(c *gin.Context) {
	h.resolveFriendRequest(c, models.FriendshipAccepted, "friend request accepted")
}

func (h HandlerSet) RejectFriendRequest(c *gin.Context) {
	h.resolveFriendRequest(c, models.FriendshipRejected, "friend request rejected")
}

func (h HandlerSet) resolveFriendRequest(c *gin.Context, status models.FriendshipStatus, message string) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	friendID, ok := friendIDParam(c)
	if !ok {
		return
	}

	if err := h.friends.Resolve(c.Request.Context(), user.ID, friendID, status); err != nil {
		if errors.Is(err, repository.ErrFriendshipNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "no pending request from this user"})
			return
		}
		h.log.Error().Err(err).Msg("resolve friend request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not update the request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}
