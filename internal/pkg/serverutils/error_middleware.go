package serverutils

import (
	"errors"

	"campus-assistant-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// statusError is implemented by typed errors that know their HTTP status.
type statusError interface {
	error
	HTTPStatus() int
}

// ErrorHandlerMiddleware turns errors returned by handlers into the standard
// error envelope. Unknown errors become a 500 and are logged.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var verrs *ValidationErrors
		if errors.As(err, &verrs) {
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponseWithData(fiber.StatusBadRequest, "不良請求", verrs.Fields))
		}

		var typed statusError
		if errors.As(err, &typed) {
			return ctx.Status(typed.HTTPStatus()).JSON(ErrorResponse(typed.HTTPStatus(), typed.Error()))
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return ctx.Status(fe.Code).JSON(ErrorResponse(fe.Code, fe.Message))
		}

		log.Error("HTTP", "unhandled error", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"error":  err.Error(),
		})
		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "內部伺服器錯誤"))
	}
}
