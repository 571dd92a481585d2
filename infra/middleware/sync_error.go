package middleware

import (
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"

	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"
)

// ErrorResponse is the envelope the central handler emits.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler is the centralized Fiber error handler.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		resp := ErrorResponse{
			Success:   false,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		var status int
		var appErr *apperr.AppError
		var fiberErr *fiber.Error

		switch {
		case errors.As(err, &appErr):
			status = appErr.HTTPStatus()
			resp.Error = ErrorDetail{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			}
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			resp.Error = ErrorDetail{
				Code:    apperr.CodeBadRequest,
				Message: fiberErr.Message,
			}
		default:
			status = fiber.StatusInternalServerError
			resp.Error = ErrorDetail{
				Code:    apperr.CodeInternalError,
				Message: "internal server error",
			}
			logger.WithError(err).Error("unhandled error on %s %s", c.Method(), c.Path())
		}

		if status >= 500 {
			logger.WithFields(map[string]any{
				"status": status,
				"path":   c.Path(),
			}).WithError(err).Error("request failed")
		}

		return c.Status(status).JSON(resp)
	}
}

// Recover converts panics into 500 responses with a logged stack.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).Error("panic recovered: %s", debug.Stack())
				_ = c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
					Success:   false,
					Timestamp: time.Now().UTC().Format(time.RFC3339),
					Error: ErrorDetail{
						Code:    apperr.CodeInternalError,
						Message: "internal server error",
					},
				})
			}
		}()
		return c.Next()
	}
}
