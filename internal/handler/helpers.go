package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/ai"
	"github.com/sbk2k1/sbk-assistant/internal/middleware"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/errcode"
	appErr "github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/response"
)

type errorInfo struct {
	status  int
	code    int
	message string
}

func classifyError(err error) errorInfo {
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		return errorInfo{http.StatusBadRequest, errcode.ErrInvalid, "invalid request"}
	case errors.Is(err, appErr.ErrUnauthorized):
		return errorInfo{http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized"}
	case errors.Is(err, appErr.ErrTooLarge):
		return errorInfo{http.StatusRequestEntityTooLarge, errcode.ErrFileTooLarge, "file too large"}
	case appErr.IsUnsupported(err):
		return errorInfo{http.StatusUnsupportedMediaType, errcode.ErrUnsupportedFile, err.Error()}
	case errors.Is(err, appErr.ErrTooMany):
		return errorInfo{http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests"}
	case errors.Is(err, appErr.ErrClosed):
		return errorInfo{http.StatusGone, errcode.ErrInvalid, "session closed"}
	case errors.Is(err, context.DeadlineExceeded):
		return errorInfo{http.StatusBadGateway, errcode.ErrAITimeout, "model backend timed out"}
	case errors.Is(err, ai.ErrBackendUnavailable), errors.Is(err, ai.ErrUnavailable):
		return errorInfo{http.StatusBadGateway, errcode.ErrAIUnavailable, "model backend unavailable"}
	case errors.Is(err, appErr.ErrIndexIO):
		return errorInfo{http.StatusInternalServerError, errcode.ErrIngestFailed, "vector index unavailable"}
	default:
		return errorInfo{http.StatusInternalServerError, errcode.ErrInternal, "internal error"}
	}
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	info := classifyError(err)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", info.status),
		zap.Error(err),
	)
	response.Error(c, info.status, info.code, info.message)
}
