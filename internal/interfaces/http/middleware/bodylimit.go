package middleware

import (
	"net/http"

	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused up front; chunked bodies are cut off while reading, which
// BindJSON turns into the same 413 response.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			AbortBodyTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// AbortBodyTooLarge writes the 413 envelope
func AbortBodyTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.Fail(
		dto.ErrCodeRequestTooLarge,
		"Request body exceeds maximum allowed size",
		GetRequestID(c),
	))
}
