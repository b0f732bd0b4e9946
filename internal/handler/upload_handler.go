package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/filestore"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/errcode"
	appErr "github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/response"
	"github.com/sbk2k1/sbk-assistant/internal/service"
)

const multipartOverhead = 1 << 20

type UploadHandler struct {
	store   filestore.Store
	ingest  *service.IngestService
	maxSize int64
}

func NewUploadHandler(store filestore.Store, ingest *service.IngestService, maxSize int64) *UploadHandler {
	return &UploadHandler{store: store, ingest: ingest, maxSize: maxSize}
}

// Upload stores the file and ingests it before answering.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrFileTooLarge, "file exceeds "+formatUploadLimit(h.maxSize))
			return
		}
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrFileTooLarge, "file exceeds "+formatUploadLimit(h.maxSize))
		return
	}
	key, err := filestore.Key(file.Filename)
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "invalid file name")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	ctx := c.Request.Context()
	logger := logutil.GetLogger(ctx).With(zap.String("file", key), zap.Int64("size", file.Size))
	if err := h.store.Save(ctx, key, opened, file.Size); err != nil {
		logger.Error("save upload failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrUploadFailed, "failed to store file")
		return
	}
	if _, err := opened.Seek(0, io.SeekStart); err != nil {
		handleError(c, fmt.Errorf("rewind upload: %w", err))
		return
	}
	res, err := h.ingest.Ingest(ctx, service.IngestInput{Name: key, Reader: opened})
	if err != nil {
		if errors.Is(err, appErr.ErrIndexIO) {
			logger.Error("ingest upload failed", zap.Error(err))
		}
		handleError(c, err)
		return
	}
	logger.Info("upload ingested", zap.Int("chunks", res.Chunks), zap.Int("total", res.Total))
	c.JSON(http.StatusOK, gin.H{"status": "uploaded and ingested"})
}

func formatUploadLimit(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return strconv.FormatInt(bytes/mb, 10) + "MB"
	case bytes >= kb:
		return strconv.FormatInt(bytes/kb, 10) + "KB"
	default:
		return strconv.FormatInt(bytes, 10) + "B"
	}
}
