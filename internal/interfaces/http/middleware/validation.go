package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body
const IdempotencyKeyHeader = "Idempotency-Key"

// SetupValidator installs the custom tags and JSON field naming on gin's validator
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerValidations(v)
	}
}

func registerValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("idempotency_key", func(fl validator.FieldLevel) bool {
		return ValidIdempotencyKey(fl.Field().String())
	})
}

// jsonFieldName reports errors under the name clients send
func jsonFieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return fld.Name
}

// ValidIdempotencyKey accepts 1 to MaxIdempotencyKeyLength printable ASCII
// characters, space excluded
func ValidIdempotencyKey(key string) bool {
	if key == "" || len(key) > finance.MaxIdempotencyKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if b := key[i]; b <= ' ' || b > '~' {
			return false
		}
	}
	return true
}

var fieldMessages = map[string]func(validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"min":      func(e validator.FieldError) string { return "Must be at least " + e.Param() + lengthUnit(e) },
	"max":      func(e validator.FieldError) string { return "Must be at most " + e.Param() + lengthUnit(e) },
	"gt":       func(e validator.FieldError) string { return "Must be greater than " + e.Param() },
	"uuid":     func(validator.FieldError) string { return "Invalid UUID format" },
	"oneof":    func(e validator.FieldError) string { return "Must be one of: " + e.Param() },
	"idempotency_key": func(validator.FieldError) string {
		return "Must be 1 to 128 printable ASCII characters without spaces"
	},
}

func lengthUnit(e validator.FieldError) string {
	if e.Kind() == reflect.String {
		return " characters"
	}
	return ""
}

// FormatValidationErrors converts validator output into the error envelope
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	errors.As(err, &fieldErrs)

	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := "Invalid value"
		if describe, ok := fieldMessages[fe.Tag()]; ok {
			msg = describe(fe)
		}
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: msg})
	}
	return dto.ValidationFailed("Request validation failed", requestID, details)
}

// HandleValidationError answers 400 with the field details
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}
