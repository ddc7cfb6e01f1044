package middlewares

import "github.com/gin-gonic/gin"

func abortWithError(c *gin.Context, status int, code, message string) {
	reqID := c.GetString(CtxRequestID)

	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": reqID,
		},
	})
}
