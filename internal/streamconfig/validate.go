package streamconfig

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks a configuration rejected before persistence.
var ErrValidation = errors.New("invalid stream configuration")

// ValidationError lists the rejected fields keyed by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("preset", func(fl validator.FieldLevel) bool {
			return slices.Contains(Presets, fl.Field().String())
		})
	})
	return validate
}

// Validate checks c and returns a *ValidationError describing every bad field.
func Validate(c StreamConfig) error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		// resolution[0] and resolution[1] report under "resolution"
		name, _, _ := strings.Cut(fe.Field(), "[")
		if _, seen := out.Fields[name]; !seen {
			out.Fields[name] = message(name, fe)
		}
	}
	return out
}

func message(field string, fe validator.FieldError) string {
	switch {
	case field == "stream_key" && fe.Tag() == "required":
		return "Stream key required"
	case fe.Tag() == "required" || fe.Tag() == "required_if":
		return field + " is required"
	case fe.Tag() == "gt":
		return field + " must be greater than " + fe.Param()
	case fe.Tag() == "preset":
		return fmt.Sprintf("preset %q is not one of %s", fe.Value(), strings.Join(Presets, ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
