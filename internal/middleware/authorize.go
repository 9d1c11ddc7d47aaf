package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/render-tgm/server/internal/models"
)

// RequireCapability gates a route on a role capability rather than on raw
// role strings.
func RequireCapability(allowed func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}

		if !allowed(user.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
			return
		}

		c.Next()
	}
}

func RequireModerator() gin.HandlerFunc {
	return RequireCapability(models.Role.CanModerate)
}

func RequireSuperAdmin() gin.HandlerFunc {
	return RequireCapability(models.Role.CanManageAdmins)
}
