package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/automation_backend/config"
	"github.com/mmdatafocus/automation_backend/utils"
)

// SessionMiddleware resolves the caller's workspace from an opaque session
// token held in Redis. Requests without a token pass through untouched so
// header-authenticated service callers keep working; a token that resolves
// to nothing is rejected outright.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		workspaceId, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetWorkspaceIdInContext(ctx, workspaceId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
