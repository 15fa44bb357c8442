package http

import (
	"context"
	"errors"
	"net/http"

	"georemind/internal/app/coordinator"
	"georemind/internal/domain/task"
	"georemind/internal/infra/geocode"
	sherrors "georemind/internal/shared/errors"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// mapDomainError translates a service error into a status code and a
// user-facing message. It returns (0, "") for unrecognised errors.
func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return 0, ""
	case sherrors.IsInvalidTask(err), errors.Is(err, geocode.ErrEmptyQuery):
		return http.StatusBadRequest, err.Error()
	case sherrors.IsPermissionDenied(err):
		return http.StatusForbidden, err.Error()
	case sherrors.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, task.ErrAlreadyCompleted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, coordinator.ErrShutdown):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case sherrors.IsTransient(err):
		return http.StatusBadGateway, "upstream temporarily unavailable"
	default:
		return 0, ""
	}
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, errorResponse{Error: message, RequestID: c.Writer.Header().Get(requestIDHeader)})
}

func abortWithError(c *gin.Context, status int, message string) {
	writeError(c, status, message)
	c.Abort()
}

// writeMappedError writes err using domain mapping, falling back to 500.
func (h *apiHandler) writeMappedError(c *gin.Context, err error, fallback string) {
	if status, msg := mapDomainError(err); status != 0 {
		writeError(c, status, msg)
		return
	}
	h.logger.Error("%s %s: %s: %v", c.Request.Method, c.Request.URL.Path, fallback, err)
	writeError(c, http.StatusInternalServerError, fallback)
}
