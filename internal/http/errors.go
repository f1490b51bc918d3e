package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"poll-api/internal/service"
)

// respondError traduce errores de servicio a status + {"error": "..."}. Los errores
// internos se registran con detalle y al cliente solo le llega un mensaje generico.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
		return
	}

	switch {
	case errors.Is(err, service.ErrVerificationExpired):
		c.JSON(http.StatusAccepted, gin.H{"message": "verification expired, a new one has been sent to your email"})
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPoll),
		errors.Is(err, service.ErrInvalidOption),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrOTPInvalid),
		errors.Is(err, service.ErrOTPNotRequested),
		errors.Is(err, service.ErrPasswordRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrPollNotFound),
		errors.Is(err, service.ErrOptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidResetToken),
		errors.Is(err, service.ErrJWTInvalid),
		errors.Is(err, service.ErrJWTExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "please verify your email before logging in"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn(op+" timed out", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request timed out"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
}

// bindError arma un mensaje por campo a partir de los errores de binding de gin.
func bindError(c *gin.Context, logger *zap.Logger, op string, err error) {
	logger.Warn("invalid "+op+" request", zap.Error(err))

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		c.JSON(http.StatusBadRequest, gin.H{"error": fieldMessage(fe), "field": fe.Field()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	if msg, ok := service.FieldMessage(field, fe.Tag()); ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s field can't be left empty", field)
	case "email":
		return "Please provide a valid email"
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", strings.ToLower(field))
	}
}
