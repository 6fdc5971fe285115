package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"filecrush/compressd/pkg/apperr"
)

// abortError translates a service error into the response body shape
// used everywhere. Internal details are logged, never returned.
func abortError(c *gin.Context, requestID string, err error) {
	status := apperr.Status(err)

	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.String("requestID", requestID), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":     apperr.Message(err),
		"requestID": requestID,
	})
}

// callerToken extracts the caller credential: Authorization bearer
// header first, auth_token cookie as the fallback. Empty means anonymous.
func callerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
	}

	if tok, err := c.Cookie("auth_token"); err == nil {
		return tok
	}

	return ""
}
