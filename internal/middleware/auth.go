package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/config"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/security"
)

const currentUserKey = "current_user"

// UserLoader fetches an account by id when the cache misses.
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
}

// UserCache is the read-through cache consulted before the loader.
type UserCache interface {
	Get(ctx context.Context, id int64) (models.User, bool)
	Set(ctx context.Context, user models.User)
}

// Auth validates the bearer token and loads the caller's account, going
// through the redis-backed user cache so the users table is not hit on
// every request. The loaded user is stored on the context for handlers
// and role checks.
func Auth(cfg *config.AppConfig, users UserLoader, userCache UserCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		user, ok := userCache.Get(c.Request.Context(), claims.UserID)
		if !ok {
			user, err = users.GetByID(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "user not found"})
				return
			}
			userCache.Set(c.Request.Context(), user)
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated account placed on the context by
// Auth. The boolean is false on routes that skipped the middleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
