package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrNotFound can be wrapped by services to report a missing resource as a 404
var ErrNotFound = errors.New("not found")

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// ValidationError is returned by services when a request is well formed but
// its values are not acceptable
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		handleError(c, err)
	}
}

// Success sends a successful response. POST requests answer 201.
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}
	c.JSON(status, Response{Success: true, Data: data})
}

// writeError sends a failed envelope with the given status and error code
func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   &Error{Code: code, Message: message},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	writeError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	writeError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	writeError(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	writeError(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	writeError(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// ValidationFailed sends a 400 response for values a service rejected, such as
// an unknown broker on a payment
func ValidationFailed(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, ErrCodeValidationFailed, message)
}

// handleError maps service errors that are not gorm errors
func handleError(c *gin.Context, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		ValidationFailed(c, validationErr.Error())
	case errors.Is(err, ErrNotFound):
		NotFound(c, err.Error())
	default:
		InternalError(c, "An unexpected error occurred")
	}
} 