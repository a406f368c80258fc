package handlers

import (
	"FormCoach/internal/analysis"
	"FormCoach/internal/pipeline"
	"FormCoach/pkg/video"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
)

// UploadField is the multipart field carrying the video.
const UploadField = "file"

const formMemory = 32 << 20

var errNotMP4 = errors.New("Only .mp4 videos are supported.")

// errorResponse keeps the {"detail": ...} shape existing clients parse.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// openUpload returns the MP4 part of a multipart upload limited to maxBytes.
func openUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (multipart.File, *multipart.FileHeader, int, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		return nil, nil, http.StatusBadRequest, fmt.Errorf("failed to parse form data: %w", err)
	}

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		return nil, nil, http.StatusBadRequest, fmt.Errorf("failed to read %q field: %w", UploadField, err)
	}
	if header.Header.Get("Content-Type") != "video/mp4" {
		file.Close()
		return nil, nil, http.StatusBadRequest, errNotMP4
	}
	return file, header, http.StatusOK, nil
}

// StatusFor maps a pipeline failure to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNoUpload), errors.Is(err, pipeline.ErrTooLong):
		return http.StatusBadRequest
	case errors.Is(err, video.ErrNotFound), errors.Is(err, video.ErrDecodeUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
