package middleware

import (
	"quiz_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestID 沿用客户端传入的 X-Request-ID，没有则生成
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(util.HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(util.ContextRequestIDKey, id)
		c.Header(util.HeaderRequestID, id)
		c.Next()
	}
}
