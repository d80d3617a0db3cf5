package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/driftspace/backend/internal/domain"
	"github.com/driftspace/backend/internal/middleware"
	"github.com/driftspace/backend/pkg/response"
)

// multipartOverhead is the slack allowed for multipart boundaries and
// part headers beyond the file bytes themselves.
const multipartOverhead = 64 << 10

type MediaHandler struct {
	mediaService *domain.MediaService
	maxUpload    int64
	logger       *zap.Logger
}

func NewMediaHandler(mediaService *domain.MediaService, maxUpload int64, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		maxUpload:    maxUpload,
		logger:       logger,
	}
}

// Upload accepts a multipart image upload and returns the stored
// attachment descriptor for use in a subsequent send-message call.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	// Multipart framing adds boundary and header bytes on top of the
	// file itself, so the body cap carries slack; the exact per-file
	// byte limit is enforced by the service.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload + multipartOverhead); err != nil {
		response.PayloadTooLarge(w, domain.ErrFileTooLarge.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", zap.Error(err))
		response.InternalError(w, "failed to read upload")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	attachment, err := h.mediaService.Upload(r.Context(), data, header.Filename, mimeType, userID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMediaType):
			response.UnsupportedMediaType(w, err.Error())
		case errors.Is(err, domain.ErrFileTooLarge):
			response.PayloadTooLarge(w, err.Error())
		default:
			h.logger.Error("failed to store upload", zap.Error(err))
			response.InternalError(w, "failed to store upload")
		}
		return
	}

	response.Created(w, attachment)
}
