package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// APIError is the body of a failed request.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondErr maps a service error onto a status and code.
func respondErr(c *gin.Context, err error) {
	status, code := classify(err)
	respondError(c, status, code, err)
}

func classify(err error) (int, string) {
	var verr *types.ValidationError
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrDuplicateID), errors.Is(err, types.ErrHasChildren):
		return http.StatusConflict, "conflict"
	case errors.Is(err, types.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_" + verr.Field
	case errors.Is(err, types.ErrCycle):
		return http.StatusConflict, "cycle"
	case errors.Is(err, types.ErrInvalidStatus), errors.Is(err, types.ErrInvalidRole),
		errors.Is(err, types.ErrInvalidID), errors.Is(err, types.ErrInvalidData):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
