// Package validators checks uploads before the engine ever sees them.
// Everything rejected here is a validation error, distinct from a
// processing failure, so clients know whether retrying makes sense.
package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"

	"filecrush/compressd/internal/model"
)

var (
	ErrNoFile              = errors.New("no file provided")
	ErrFileEmpty           = errors.New("empty file")
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
)

const maxFileNameSize = 255

// FileValidator checks the upload and resolves its media type. The type
// comes from content sniffing, never from the user-supplied filename or
// headers alone. Returns the opened file rewound to the start.
func FileValidator(fh *multipart.FileHeader) (model.MediaType, multipart.File, int, error) {
	if fh == nil {
		return "", nil, http.StatusBadRequest, ErrNoFile
	}

	if fh.Size <= 0 {
		return "", nil, http.StatusBadRequest, ErrFileEmpty
	}

	if len(fh.Filename) > maxFileNameSize {
		return "", nil, http.StatusBadRequest, ErrFileNameTooLong
	}

	if fh.Size > viper.GetInt64("upload.max_size") {
		return "", nil, http.StatusRequestEntityTooLarge, ErrFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, http.StatusInternalServerError, err
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return "", nil, http.StatusInternalServerError, err
	}

	mediaType, ok := mediaTypeFor(mime)
	if !ok {
		f.Close()
		return "", nil, http.StatusUnsupportedMediaType, ErrFileTypeUnsupported
	}

	allowed := viper.GetStringSlice("upload.allowed_types")
	if !slices.Contains(allowed, string(mediaType)) {
		f.Close()
		return "", nil, http.StatusUnsupportedMediaType, ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return "", nil, http.StatusInternalServerError, err
	}

	return mediaType, f, 0, nil
}

func mediaTypeFor(mime *mimetype.MIME) (model.MediaType, bool) {
	switch {
	case mime.Is("application/pdf"):
		return model.MediaPDF, true
	case strings.HasPrefix(mime.String(), "image/"):
		return model.MediaImage, true
	case strings.HasPrefix(mime.String(), "video/"):
		return model.MediaVideo, true
	case strings.HasPrefix(mime.String(), "audio/"):
		return model.MediaAudio, true
	}

	return "", false
}
