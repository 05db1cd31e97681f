package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/gin-gonic/gin"
)

// TokenLookup resolves a session token to a username.
type TokenLookup func(key string) (string, bool, error)

func SessionMiddleware() gin.HandlerFunc {
	return SessionMiddlewareWith(config.GetRedisValue)
}

func SessionMiddlewareWith(lookup TokenLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := lookup("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(utils.SetUsernameInContext(c.Request.Context(), username))
		c.Next()
	}
}
