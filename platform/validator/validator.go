// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the shared custom tags registered.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("imageref", validateImageRef)
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// validateImageRef accepts absolute http(s) URLs or bucket-relative object
// keys such as "requests/REQ…/scene/abc.jpg".
func validateImageRef(fl validator.FieldLevel) bool {
	ref := strings.TrimSpace(fl.Field().String())
	if ref == "" || len(ref) > 1024 {
		return false
	}
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}
	return !strings.HasPrefix(ref, "/") && !strings.Contains(ref, "..")
}
