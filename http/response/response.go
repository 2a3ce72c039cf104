package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"studio-booking/errors"
)

// StandardResponse represents the standard API response structure
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a success response with given status code, message, and data
func Success(c echo.Context, statusCode int, message string, data interface{}) error {
	return c.JSON(statusCode, StandardResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// Error sends an error response with given status code and error message
func Error(c echo.Context, statusCode int, errorMsg string) error {
	return c.JSON(statusCode, StandardResponse{
		Status: "error",
		Error:  errorMsg,
	})
}

// FromError maps an application error to its HTTP status.
func FromError(c echo.Context, err error) error {
	status := StatusFor(err)
	msg := http.StatusText(status)

	var appErr *errors.Error
	if errors.As(err, &appErr) && appErr.Message != "" && status < http.StatusInternalServerError {
		msg = appErr.Message
	}
	return Error(c, status, msg)
}

// StatusFor returns the HTTP status matching err's Kind.
func StatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.Invalid:
		return http.StatusBadRequest
	case errors.NotFound:
		return http.StatusNotFound
	case errors.Conflict:
		return http.StatusConflict
	case errors.Unauthorized:
		return http.StatusUnauthorized
	case errors.Forbidden:
		return http.StatusForbidden
	case errors.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
