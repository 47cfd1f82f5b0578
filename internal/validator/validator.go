package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"actiongate/internal/dispatcher"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator represents a validator instance
type Validator struct {
	validate *validator.Validate
}

// New creates a new validator instance
func New() *Validator {
	once.Do(func() {
		validate = validator.New()

		// Register custom validation functions
		_ = validate.RegisterValidation("policy", validatePolicy)
		_ = validate.RegisterValidation("channel", validateChannel)

		// Report config keys (or JSON names) instead of Go field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"mapstructure", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})

	return &Validator{
		validate: validate,
	}
}

// Struct validates a struct
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid validation error: %w", err)
		}

		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		errMsgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			errMsgs = append(errMsgs, formatError(fe))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errMsgs, "; "))
	}
	return nil
}

// Var validates a single variable
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// formatError formats a validation error
func formatError(err validator.FieldError) string {
	field := err.Namespace()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, err.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, err.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "policy":
		return fmt.Sprintf("%s must be one of LEADING_EDGE, TRAILING_EDGE, THROTTLE", field)
	case "channel":
		return fmt.Sprintf("%s must be a non-blank name without '/'", field)
	default:
		return fmt.Sprintf("%s failed on tag %s", field, err.Tag())
	}
}

// validatePolicy accepts an empty value (default policy) or a known policy name
func validatePolicy(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := dispatcher.ParsePolicy(s)
	return err == nil
}

// validateChannel rejects names that cannot appear in a URL path segment
func validateChannel(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.TrimSpace(s) != "" && !strings.Contains(s, "/")
}
