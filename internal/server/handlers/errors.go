package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/domain/models"
)

var registerOnce sync.Once

// RegisterValidators adds the stock-specific tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("stockunit", func(fl validator.FieldLevel) bool {
			return models.Unit(fl.Field().String()).Valid()
		})
	})
}

// bindError turns a binding failure into a validation AppError listing the
// offending fields.
func bindError(err error) *apperror.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			fields[lowerFirst(fe.Field())] = fe.Tag()
		}
		appErr := apperror.NewValidation("invalid request")
		appErr.Details = map[string]any{"fields": fields}
		return appErr
	}
	return apperror.NewValidation("malformed request body").WithCause(err)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ErrorMiddleware renders the last error pushed with c.Error as JSON. Internal
// causes are logged and never sent to the client.
func ErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			appErr = apperror.NewInternal(err)
		}
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}

		if appErr.Err != nil || status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("code", appErr.Code),
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Error(err))
		}

		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if status >= http.StatusInternalServerError {
			body["details"] = gin.H{"request_id": c.GetString(requestIDKey)}
		}
		c.JSON(status, body)
	}
}

// requestIDKey is where the request-id middleware stores the id.
const requestIDKey = "request_id"
