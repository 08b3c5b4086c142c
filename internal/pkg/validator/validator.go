// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package validator wraps go-playground/validator with the custom tags used
// by taskloop request types and exposes field errors keyed by JSON name.
package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator validates structs and single variables.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator. All Validators share one underlying instance so
// custom tag registration happens exactly once.
func New() *Validator {
	once.Do(func() {
		instance = validator.New()

		// Report fields by their JSON name.
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		must(instance.RegisterValidation("username", validUsername))
		must(instance.RegisterValidation("password_strength", validPasswordStrength))
		must(instance.RegisterValidation("phone", validPhone))
		must(instance.RegisterValidation("weekday", validWeekday))
		must(instance.RegisterValidation("cron", validCron))
	})
	return &Validator{v: instance}
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("validator: register custom tag: %v", err))
	}
}

// Validate validates a struct using its validate tags.
func (va *Validator) Validate(s interface{}) error {
	return va.v.Struct(s)
}

// ValidateVar validates a single value against a tag expression.
func (va *Validator) ValidateVar(value interface{}, tag string) error {
	return va.v.Var(value, tag)
}

// ValidationErrors converts a validation error into a field->message map.
// Non-validation errors are reported under the "_error" key; nil yields nil.
func (va *Validator) ValidationErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_error": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

// message renders a human-readable error for one field.
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "username":
		return "must start with a letter and contain only letters, digits and underscores"
	case "password_strength":
		return "must be at least 8 characters with upper, lower and digit"
	case "phone":
		return "must be a valid phone number"
	case "weekday":
		return "must be a weekday index between 0 (Sunday) and 6 (Saturday)"
	case "cron":
		return "must be a valid cron expression"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ============================================================================
// Custom validations
// ============================================================================

var usernameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

func validUsername(fl validator.FieldLevel) bool {
	return usernameRe.MatchString(fl.Field().String())
}

func validPasswordStrength(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// validPhone accepts international numbers with an optional + prefix,
// ignoring spaces and dashes: 8 to 15 digits (E.164 bound).
func validPhone(fl validator.FieldLevel) bool {
	s := strings.NewReplacer(" ", "", "-", "").Replace(fl.Field().String())
	s = strings.TrimPrefix(s, "+")
	if len(s) < 8 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validWeekday(fl validator.FieldLevel) bool {
	d := fl.Field().Int()
	return d >= 0 && d <= 6
}

// validCron accepts 5-field (standard) and 6-field (with seconds)
// expressions. Field contents are checked structurally, not semantically;
// robfig/cron performs the full parse at schedule time.
func validCron(fl validator.FieldLevel) bool {
	fields := strings.Fields(fl.Field().String())
	return len(fields) == 5 || len(fields) == 6
}

// ============================================================================
// Package-level convenience
// ============================================================================

// Validate validates a struct with the shared instance.
func Validate(s interface{}) error {
	return New().Validate(s)
}

// ValidateVar validates a single value with the shared instance.
func ValidateVar(value interface{}, tag string) error {
	return New().ValidateVar(value, tag)
}

// GetValidationErrors converts err into a field->message map.
func GetValidationErrors(err error) map[string]string {
	return New().ValidationErrors(err)
}
