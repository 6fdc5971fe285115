package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FileDownload streams a compressed artifact. The gate decides: expired
// or unknown ids are 404 no matter whether the sweep already ran,
// large artifacts need a valid credential.
func (a *API) FileDownload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	h, err := a.Gate.AuthorizeDownload(c.Request.Context(), c.Param("id"), callerToken(c))
	if err != nil {
		abortError(c, requestID, err)
		return
	}
	defer h.Close()

	c.DataFromReader(http.StatusOK, h.Size, h.ContentType, h, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", h.Name),
	})
}
