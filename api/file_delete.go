package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FileDelete removes an artifact before its expiry. Owned records need
// the owner's credential, anonymous ones follow the download policy.
func (a *API) FileDelete(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	err := a.Gate.AuthorizeDelete(c.Request.Context(), c.Param("id"), callerToken(c))
	if err != nil {
		abortError(c, requestID, err)
		return
	}

	c.Status(http.StatusOK)
}
