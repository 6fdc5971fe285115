package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Heartbeat is used by health checks to see if the server is alive
func (a *API) Heartbeat(c *gin.Context) {
	c.Status(http.StatusOK)
}
