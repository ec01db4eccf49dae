// Package validate wraps go-playground/validator with the rules and error
// messages used by request payloads.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator validates structs using `validate` tags. It satisfies
// echo.Validator.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator that reports fields by their JSON names
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Validate checks i and returns a *Error listing every failing field
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return newError(fieldErrs)
	}
	return err
}

// Var validates a single value against tag
func (v *Validator) Var(field interface{}, tag string) error {
	return v.validate.Var(field, tag)
}

// Error maps field names to human readable problems
type Error struct {
	Fields map[string]string `json:"fields"`
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	messages := make([]string, 0, len(names))
	for _, name := range names {
		messages = append(messages, e.Fields[name])
	}
	return "validation failed: " + strings.Join(messages, ", ")
}

func newError(fieldErrs validator.ValidationErrors) *Error {
	fields := make(map[string]string, len(fieldErrs))

	for _, fe := range fieldErrs {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			fields[name] = fmt.Sprintf("%s is required", name)
		case "email":
			fields[name] = fmt.Sprintf("%s must be a valid email address", name)
		case "url":
			fields[name] = fmt.Sprintf("%s must be a valid URL", name)
		case "min":
			fields[name] = fmt.Sprintf("%s must be at least %s characters long", name, fe.Param())
		case "max":
			fields[name] = fmt.Sprintf("%s must be at most %s characters long", name, fe.Param())
		case "slug":
			fields[name] = fmt.Sprintf("%s must contain only lowercase letters, numbers and hyphens", name)
		case "nefield":
			fields[name] = fmt.Sprintf("%s must differ from %s", name, strings.ToLower(fe.Param()))
		default:
			fields[name] = fmt.Sprintf("%s is invalid", name)
		}
	}

	return &Error{Fields: fields}
}
