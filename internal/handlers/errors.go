package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lakewatch/thermal-service/internal/apperrors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error" jsonschema:"required"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation, apperrors.CodeManifestParse:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeConflict:
		return http.StatusConflict
	case apperrors.CodeStaleReprocess:
		return http.StatusUnprocessableEntity
	case apperrors.CodeTransientProvider, apperrors.CodeTaskFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: string(code)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: string(apperrors.CodeValidation)})
}
