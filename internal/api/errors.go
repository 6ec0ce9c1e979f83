package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
)

var statusByCode = map[apperrors.Code]int{
	apperrors.CodeInvalidArgument:   fiber.StatusBadRequest,
	apperrors.CodeUnauthenticated:   fiber.StatusUnauthorized,
	apperrors.CodePermissionDenied:  fiber.StatusForbidden,
	apperrors.CodeNotFound:          fiber.StatusNotFound,
	apperrors.CodeConflict:          fiber.StatusConflict,
	apperrors.CodeRateLimited:       fiber.StatusTooManyRequests,
	apperrors.CodeDeadlineExceeded:  fiber.StatusGatewayTimeout,
	apperrors.CodeDecryptionFailure: fiber.StatusInternalServerError,
	apperrors.CodeInternal:          fiber.StatusInternalServerError,
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler renders every error as {"error": {"code", "message"}}.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": errorBody{Code: codeForStatus(fe.Code), Message: fe.Message}})
		}

		code := apperrors.CodeOf(err)
		status, ok := statusByCode[code]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()), zap.String("path", c.Path()), zap.String("code", string(code)), zap.Error(err))
		}
		return c.Status(status).JSON(fiber.Map{"error": errorBody{Code: string(code), Message: apperrors.Message(err)}})
	}
}

func codeForStatus(status int) string {
	for code, s := range statusByCode {
		if s == status && code != apperrors.CodeDecryptionFailure {
			return string(code)
		}
	}
	return string(apperrors.CodeUnknown)
}
