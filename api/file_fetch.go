package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FileFetch returns the record summary for a live record. Expired
// records are gone from this endpoint too, reaped or not.
func (a *API) FileFetch(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	rec, err := a.Registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, rec.Summarize())
}
