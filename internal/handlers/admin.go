package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
)

type createAdminRequestBody struct {
	Reason string `json:"motivo" binding:"required"`
}

// CreateAdminRequest files the authenticated user's application for the
// admin role. Users who already moderate have nothing to apply for.
func (h HandlerSet) CreateAdminRequest(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	if user.Role.CanModerate() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "you already have an administrative role"})
		return
	}

	var body createAdminRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "a reason is required"})
		return
	}

	if err := h.adminRequests.Create(c.Request.Context(), user.ID, body.Reason); err != nil {
		if errors.Is(err, repository.ErrRequestPending) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "you already have a pending request"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("create admin request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not create the request"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "admin request submitted"})
}

type adminRequestResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"usuario_id"`
	UserName    string    `json:"nombre"`
	UserEmail   string    `json:"correo"`
	Reason      string    `json:"motivo"`
	Status      string    `json:"estado"`
	RequestedAt time.Time `json:"fecha_solicitud"`
}

func (h HandlerSet) ListAdminRequests(c *gin.Context) {
	requests, err := h.adminRequests.ListPending(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list admin requests failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list requests"})
		return
	}

	out := make([]adminRequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, adminRequestResponse{
			ID:          req.ID,
			UserID:      req.UserID,
			UserName:    req.UserName,
			UserEmail:   req.UserEmail,
			Reason:      req.Reason,
			Status:      string(req.Status),
			RequestedAt: req.RequestedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

type resolveAdminRequestBody struct {
	RequestID int64  `json:"requestId" binding:"required"`
	Action    string `json:"action" binding:"required,oneof=approve reject"`
}

// ResolveAdminRequest approves or rejects a pending application. Approval
// promotes the applicant to admin and drops their cached record so the
// new role takes effect on their next request.
func (h HandlerSet) ResolveAdminRequest(c *gin.Context) {
	reviewer, ok := requireUser(c)
	if !ok {
		return
	}

	var body resolveAdminRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "requestId and an action (approve or reject) are required"})
		return
	}

	status := models.AdminRequestRejected
	if body.Action == "approve" {
		status = models.AdminRequestApproved
	}

	userID, err := h.adminRequests.Resolve(c.Request.Context(), body.RequestID, reviewer.ID, status)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "pending request not found"})
			return
		}
		h.log.Error().Err(err).Int64("request_id", body.RequestID).Msg("resolve admin request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not resolve the request"})
		return
	}

	if status == models.AdminRequestApproved {
		if err := h.users.UpdateRole(c.Request.Context(), userID, models.RoleAdmin); err != nil {
			h.log.Error().Err(err).Int64("user_id", userID).Msg("promote user failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not promote the user"})
			return
		}
		h.userCache.Invalidate(c.Request.Context(), userID)
		h.log.Info().Int64("user_id", userID).Int64("reviewer_id", reviewer.ID).Msg("user promoted to admin")
	}

	message := "request rejected"
	if status == models.AdminRequestApproved {
		message = "request approved"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (h HandlerSet) ListAdmins(c *gin.Context) {
	admins, err := h.users.ListByRole(c.Request.Context(), models.RoleAdmin)
	if err != nil {
		h.log.Error().Err(err).Msg("list admins failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not list admins"})
		return
	}

	out := make([]userResponse, 0, len(admins))
	for _, admin := range admins {
		out = append(out, toUserResponse(admin))
	}
	c.JSON(http.StatusOK, out)
}

// RemoveAdmin demotes an admin back to a regular user. The configured
// superadmin account can never be demoted.
func (h HandlerSet) RemoveAdmin(c *gin.Context) {
	adminID, err := strconv.ParseInt(c.Param("adminId"), 10, 64)
	if err != nil || adminID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return
	}

	target, err := h.users.GetByID(c.Request.Context(), adminID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", adminID).Msg("admin lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not remove the admin"})
		return
	}

	if strings.EqualFold(target.Email, h.cfg.Security.SuperAdminEmail) || target.Role == models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"message": "the superadmin cannot be demoted"})
		return
	}
	if target.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"message": "user is not an admin"})
		return
	}

	if err := h.users.UpdateRole(c.Request.Context(), adminID, models.RoleUser); err != nil {
		h.log.Error().Err(err).Int64("user_id", adminID).Msg("demote admin failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not remove the admin"})
		return
	}
	h.userCache.Invalidate(c.Request.Context(), adminID)

	c.JSON(http.StatusOK, gin.H{"message": "admin role removed"})
}
