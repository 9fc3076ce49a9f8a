package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	sharedHTTP "github.com/hezron-sketch/cafe-backend/pkg/http"
	"github.com/sirupsen/logrus"
)

// respondError maps the domain error kinds to HTTP statuses. Only the
// client-safe message is sent; causes stay in the log.
func respondError(c *fiber.Ctx, err error) error {
	message := domain.PublicMessage(err, "Internal server error")

	switch {
	case errors.Is(err, domain.ErrValidation):
		return sharedHTTP.BadRequestResponse(c, message, nil)
	case errors.Is(err, domain.ErrUnauthenticated):
		return sharedHTTP.UnauthorizedResponse(c, message)
	case errors.Is(err, domain.ErrForbidden):
		return sharedHTTP.ForbiddenResponse(c, message)
	case errors.Is(err, domain.ErrNotFound):
		return sharedHTTP.NotFoundResponse(c, message)
	case errors.Is(err, domain.ErrInvalidTransition):
		return sharedHTTP.ConflictResponse(c, message, map[string]interface{}{"reason": "invalid_transition"})
	case errors.Is(err, domain.ErrConflict):
		return sharedHTTP.ConflictResponse(c, message, nil)
	case errors.Is(err, domain.ErrGateway):
		logrus.WithError(err).WithField("path", c.Path()).Warn("Payment gateway error")
		return sharedHTTP.BadGatewayResponse(c, message)
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("Request failed")
	return sharedHTTP.InternalServerErrorResponse(c, "Internal server error", nil)
}

// ErrorHandler is the Fiber fallback for errors no handler answered.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code != fiber.StatusInternalServerError {
		return sharedHTTP.ErrorResponse(c, fe.Code, "HTTP_ERROR", fe.Message)
	}
	return respondError(c, err)
}
