package response

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

// ErrorResponse defines the JSON structure for error responses.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error sends a JSON error response.
// It checks if the error is an AppError to determine the status code and to
// attach structured details (e.g. colliding bookings on a conflict).
// If it's not an AppError, it defaults to 500 Internal Server Error.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.Kind == apperror.KindInternal && appErr.Err != nil {
			log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, appErr.Err)
		}
		c.JSON(appErr.Code, ErrorResponse{
			Error:     appErr.Message,
			Kind:      string(appErr.Kind),
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
		})
		return
	}

	log.Printf("unhandled error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
