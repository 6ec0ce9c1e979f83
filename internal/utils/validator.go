package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one failed validate tag. Field is the leaf name,
// Path the dotted name below the root struct.
type ValidationError struct {
	Field     string `json:"field"`
	Path      string `json:"-"`
	Namespace string `json:"-"`
	Tag       string `json:"tag"`
	Param     string `json:"-"`
	Message   string `json:"message"`
}

// Qualified is Message with the full path in place of the leaf name.
func (e ValidationError) Qualified() string {
	return describe(e.Path, e.Tag, e.Param)
}

var validate = NewValidator("json")

// NewValidator returns a validator that names fields after the given struct
// tag (json, mapstructure) so messages match what the caller wrote.
func NewValidator(tagName string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get(tagName), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateStruct checks v against its validate tags and returns every
// failure, or nil when v is valid.
func ValidateStruct(v any) []ValidationError {
	return FormatValidationErrors(validate.Struct(v))
}

// ValidateVar checks a single value against tag.
func ValidateVar(v any, tag string) bool {
	return validate.Var(v, tag) == nil
}

// FormatValidationErrors converts validator.ValidationErrors into
// ValidationError values. Any other error becomes a single entry.
func FormatValidationErrors(err error) []ValidationError {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []ValidationError{{Message: err.Error()}}
	}
	out := make([]ValidationError, len(ve))
	for i, fe := range ve {
		out[i] = ValidationError{
			Field:     fe.Field(),
			Path:      fieldPath(fe.Namespace()),
			Namespace: fe.StructNamespace(),
			Tag:       fe.Tag(),
			Param:     fe.Param(),
			Message:   describe(fe.Field(), fe.Tag(), fe.Param()),
		}
	}
	return out
}

func describe(field, tag, param string) string {
	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s long", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, tag)
}

// fieldPath drops the root struct name: "Config.jwt.secret" -> "jwt.secret".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Join renders failures as one message.
func Join(errs []ValidationError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}
