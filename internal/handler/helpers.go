package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/internal/utils"
)

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func userIDFromContext(c *fiber.Ctx) uint {
	if identity, ok := middleware.IdentityFrom(c); ok {
		return identity.UserID
	}
	if id, ok := c.Locals("user_id").(uint); ok {
		return id
	}
	return 0
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError maps domain error kinds onto HTTP statuses. Unknown failures are logged and hidden.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return utils.Fail(c, fiber.StatusBadRequest, "validation", "validation failed", validationDetails(fieldErrs))
		}
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendErrorKind(c, fiber.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrNotFound):
		return utils.SendErrorKind(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrConflict):
		return utils.SendErrorKind(c, fiber.StatusConflict, "conflict", err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Str("action", action).Msg("request failed")
		return utils.SendErrorKind(c, fiber.StatusInternalServerError, "internal", "internal server error")
	}
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(fieldErrs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func unauthenticated(c *fiber.Ctx) error {
	return utils.SendErrorKind(c, fiber.StatusUnauthorized, "unauthenticated", "user not authenticated")
}

func validationFailure(message string) error {
	return fmt.Errorf("%w: %s", service.ErrValidation, message)
}
