package middlewares

import (
	"context"
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UserFinder func(ctx context.Context, username string) (*models.User, error)

// AdminMiddleware only lets active admin users through. It must run after
// SessionMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return AdminMiddlewareWith(models.GetUser)
}

func AdminMiddlewareWith(find UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := utils.GetUsernameFromContext(c.Request.Context())
		if !ok || username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, err := find(c.Request.Context(), username)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "authMiddleware.go", "AdminMiddleware", "GetUser", username, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Request = c.Request.WithContext(utils.SetIsAdminInContext(c.Request.Context(), true))
		c.Next()
	}
}
