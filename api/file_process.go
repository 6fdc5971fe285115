package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"filecrush/compressd/internal/service"
	"filecrush/compressd/validators"
)

// FileProcess accepts a multipart upload, runs it through the
// compression engine and answers with the record summary. Anything
// rejected here never creates a record; failures past validation do,
// with status failed and the reason attached.
func (a *API) FileProcess(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	if !strings.HasPrefix(c.Request.Header.Get("Content-Type"), "multipart/form-data") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request",
			"requestID": requestID,
		})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to parse multipart form", zap.Error(err))
		return
	}

	files := form.File["file"]
	if len(files) <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return
	}

	fh := files[0]

	mediaType, f, code, err := validators.FileValidator(fh)
	if err != nil {
		if code == http.StatusInternalServerError {
			zap.L().Error("Failed to validate file", zap.Error(err))

			// That's to set the error into a general one for the users
			err = errors.New("internal server error")
		}

		c.AbortWithStatusJSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}
	defer f.Close()

	// An upload with a credential is attributed to its subject. A bad
	// credential is rejected instead of silently downgrading to anonymous.
	var ownerRef *string
	if token := callerToken(c); token != "" {
		sub, err := a.Gate.VerifyToken(token)
		if err != nil {
			abortError(c, requestID, err)
			return
		}
		ownerRef = &sub
	}

	temp, err := os.CreateTemp("", "upload-*")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create temporary file", zap.Error(err))
		return
	}
	defer os.Remove(temp.Name())

	_, err = io.Copy(temp, f)
	temp.Close()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to copy data to temporary file", zap.Error(err))
		return
	}

	rec, err := a.Engine.Process(c.Request.Context(), service.Input{
		Path:         temp.Name(),
		Size:         fh.Size,
		MediaType:    mediaType,
		OriginalName: fh.Filename,
		OwnerRef:     ownerRef,
	})
	if err != nil {
		abortError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, rec.Summarize())
}
