package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var safeIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// SafeID reports whether id is a well-formed identifier.
func SafeID(id string) bool {
	return safeIDRegex.MatchString(id)
}

// EnsureSafeID trims id and returns an error naming field when it is not a
// well-formed identifier of at most maxLen characters.
func EnsureSafeID(field, id string, maxLen int) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	if !SafeID(id) || (maxLen > 0 && len(id) > maxLen) {
		return "", fmt.Errorf("%s is invalid", field)
	}
	return id, nil
}

// SanitizeText trims value, strips control characters and caps it at maxLen
// runes. Tab, newline and carriage return survive when multiline is set.
func SanitizeText(value string, maxLen int, multiline bool) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.TrimSpace(value) {
		if r < 32 || r == 127 {
			if multiline && (r == '\t' || r == '\n' || r == '\r') {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if maxLen > 0 && utf8.RuneCountInString(out) > maxLen {
		out = string([]rune(out)[:maxLen])
	}
	return out
}

// SanitizeStringSlice sanitizes each value, drops empties and duplicates, and
// keeps at most maxItems entries.
func SanitizeStringSlice(values []string, maxItems, maxItemLen int) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = SanitizeText(v, maxItemLen, false)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if maxItems > 0 && len(out) == maxItems {
			break
		}
	}
	return out
}

var structValidator = playground.New(playground.WithRequiredStructEnabled())

func init() {
	structValidator.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	structValidator.RegisterValidation("safeid", func(fl playground.FieldLevel) bool {
		return SafeID(fl.Field().String())
	})
}

// Struct validates the `validate` tags of s and reports failures keyed by the
// field's json name.
func Struct(s any) ValidationErrors {
	errs := make(ValidationErrors)

	err := structValidator.Struct(s)
	if err == nil {
		return errs
	}

	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("_", err.Error())
		return errs
	}

	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), message(fe))
	}
	return errs
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "safeid":
		return "Must be a valid identifier"
	case "email":
		return "Must be a valid email address"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "datetime":
		return "Must be an RFC 3339 timestamp"
	default:
		return "Invalid value"
	}
}
