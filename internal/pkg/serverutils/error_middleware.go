package serverutils

import (
	"errors"

	"ai-intent-chat-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by later handlers into the
// JSON error envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code, message := StatusOf(err)
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

// StatusOf maps an error to an HTTP status and a client-facing message.
func StatusOf(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}

	var ae *apperror.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperror.KindInvalidRequest:
			return fiber.StatusBadRequest, ae.Error()
		case apperror.KindUnclassifiedIntent, apperror.KindUnknownHandler:
			return fiber.StatusUnprocessableEntity, ae.Error()
		case apperror.KindHandshakeRejected:
			return fiber.StatusBadRequest, ae.Error()
		}
	}
	return fiber.StatusInternalServerError, err.Error()
}
