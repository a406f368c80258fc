package handlers

import (
	"FormCoach/internal/pipeline"
	"net/http"

	"go.uber.org/zap"
)

// AnalyzeHandler runs the whole analysis within the request.
type AnalyzeHandler struct {
	engine         pipeline.Engine
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewAnalyzeHandler(engine pipeline.Engine, maxUploadBytes int64, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		engine:         engine,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Handle answers POST /analyze-video/ with the report.
func (h *AnalyzeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	file, header, status, err := openUpload(w, r, h.maxUploadBytes)
	if err != nil {
		h.logger.Warn("Rejected upload", zap.Int("status", status), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	defer file.Close()

	h.logger.Info("Analysis requested", zap.String("filename", header.Filename), zap.Int64("size", header.Size))

	report, err := h.engine.Run(r.Context(), pipeline.Request{Upload: file})
	if err != nil {
		status := StatusFor(err)
		h.logger.Error("Analysis failed", zap.String("filename", header.Filename), zap.Int("status", status), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}
