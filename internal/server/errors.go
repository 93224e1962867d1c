package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/pkg/schema"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrNotConfigured   = errors.New("not configured on this server")
	ErrMissingWorkflow = errors.New("workflow not found")
)

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation, schema.ErrCodeCycleDetected, schema.ErrCodeUnknownNodeType, schema.ErrCodeConfig:
		return http.StatusBadRequest
	case schema.ErrCodeInvalidTransition, schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeCancelled, schema.ErrCodeTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with err, using its FlowError code when it has one.
func writeError(c *gin.Context, err error) {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		status := statusFor(fe.Code)
		c.JSON(status, ErrorResponse{Error: fe.Message, Code: fe.Code, Status: status, Details: fe.Details})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Status: http.StatusInternalServerError})
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:  fmt.Sprintf(format, args...),
		Code:   schema.ErrCodeValidation,
		Status: http.StatusBadRequest,
	})
}

func notFound(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:  fmt.Sprintf(format, args...),
		Code:   schema.ErrCodeNotFound,
		Status: http.StatusNotFound,
	})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:  fmt.Sprintf("%s %s", what, ErrNotConfigured),
		Status: http.StatusServiceUnavailable,
	})
}
