package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/go-playground/validator/v10"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("not authorized")
	ErrNotFound     = errors.New("not found")

	// ErrLimitExceeded is a validation error: errors.Is matches both.
	ErrLimitExceeded = fmt.Errorf("%w: exceeds the limit of %d images", ErrValidation, models.MaxImages)
)

// storeError maps store sentinels onto service sentinels.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrImageLimit):
		return ErrLimitExceeded
	}
	return err
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns validator output into an ErrValidation naming the
// first failing field.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := ve[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "max":
		msg = fmt.Sprintf("%s must be at most %s long", field, fe.Param())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s long", field, fe.Param())
	case "len":
		msg = fmt.Sprintf("%s must have exactly %s values", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		msg = field + " must be a valid email"
	case "eq":
		msg = fmt.Sprintf("%s must be %s", field, fe.Param())
	default:
		msg = field + " is invalid"
	}
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
