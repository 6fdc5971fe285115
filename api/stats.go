package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatsFetch returns the aggregate processing counters. Response is
// cached for a short while, these numbers don't need to be exact.
func (a *API) StatsFetch(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	stats, err := a.Stats.Get(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to load stats", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, stats)
}
