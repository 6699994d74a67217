// Package validation wraps go-playground/validator for request structs.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/cardlinkapp/cardlink-server/internal/errors"
)

// messages maps validator tags to user-facing text. %s is the tag param.
var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"url":      "must be a valid URL",
	"min":      "must be at least %s characters",
	"max":      "must not exceed %s characters",
	"oneof":    "must be one of: %s",
	"gte":      "must be greater than or equal to %s",
	"lte":      "must be less than or equal to %s",
}

// Validator validates request structs and reports failures as coded domain
// errors, keyed by JSON field name.
type Validator struct {
	v *validator.Validate
}

// New builds a validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &Validator{v: v}
}

// Validate checks a struct against its validate tags.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

// jsonFieldName resolves the reported field name from the json tag,
// falling back to the Go field name.
func jsonFieldName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" || tag == "-" {
		return fld.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return fld.Name
	}
	return name
}

// describe renders a single failure as user-facing text.
func describe(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, fe.Param())
	}
	return tmpl
}
