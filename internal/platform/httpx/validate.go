package httpx

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator builds a validator that reports JSON field names, so a
// validation failure on Title surfaces as "title" in the response body.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidationFields flattens validator output into one field-to-message map
// so a single 400 reports every failed field instead of stopping at the
// first. Returns nil when err is nil.
func ValidationFields(err error) map[string]string {
	if err == nil {
		return nil
	}
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = "failed on " + fieldErr.Tag()
		}
		return fields
	}
	fields["body"] = "invalid"
	return fields
}
