// Package validation checks a value set against the visible fields of a form.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/form/rules"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

const (
	msgRequired = "This field is required"
	msgEmail    = "Enter a valid email address"
	msgNumber   = "Enter a number"
	msgPattern  = "Invalid format"
	msgOption   = "Select one of the available options"
)

// Errors maps field id to a user-facing message. An empty Errors means valid.
type Errors map[string]string

func (e Errors) Valid() bool { return len(e) == 0 }

// FieldMessages lets the HTTP layer render per-field messages.
func (e Errors) FieldMessages() map[string]string { return e }

// Fields returns the failing field ids, sorted.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e Errors) Error() string {
	return fmt.Sprintf("validation failed for %s", strings.Join(e.Fields(), ", "))
}

// Unwrap ties Errors to the validation code so dErrors.HasCode works on it.
func (e Errors) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, "form validation failed")
}

// Err returns e as an error, or nil when valid.
func (e Errors) Err() error {
	if e.Valid() {
		return nil
	}
	return e
}

// Validate checks every visible field of schema.
func Validate(schema *models.FormSchema, values models.ValueSet) Errors {
	errs := Errors{}
	for _, f := range schema.Ordered() {
		if !rules.IsVisible(f, values) {
			continue
		}
		if msg, ok := Field(f, values[f.ID]); !ok {
			errs[f.ID] = msg
		}
	}
	return errs
}

// ValidateSubset checks only the named fields, whether visible or not. It is
// used for the identifier-only quick login form.
func ValidateSubset(schema *models.FormSchema, values models.ValueSet, fieldIDs []string) Errors {
	errs := Errors{}
	for _, fieldID := range fieldIDs {
		f, ok := schema.Field(fieldID)
		if !ok {
			continue
		}
		if msg, ok := Field(f, values[f.ID]); !ok {
			errs[f.ID] = msg
		}
	}
	return errs
}

// Field checks a single value against its definition.
func Field(f *models.FieldDefinition, v any) (string, bool) {
	if isMissing(f, v) {
		if f.Required {
			return msgRequired, false
		}
		return "", true
	}

	switch f.Type {
	case models.FieldEmail:
		if !IsEmail(models.Stringify(v)) {
			return message(f, msgEmail), false
		}
	case models.FieldNumber:
		if _, ok := models.Number(v); !ok {
			return msgNumber, false
		}
	case models.FieldSelect:
		if len(f.Options) > 0 {
			if _, ok := f.OptionByValue(models.Stringify(v)); !ok {
				return msgOption, false
			}
		}
	}

	val := f.Validation
	if val == nil {
		return "", true
	}
	s := models.Stringify(v)
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if val.MinLength != nil && n < *val.MinLength {
		return message(f, fmt.Sprintf("Must be at least %d characters", *val.MinLength)), false
	}
	if val.MaxLength != nil && n > *val.MaxLength {
		return message(f, fmt.Sprintf("Must be at most %d characters", *val.MaxLength)), false
	}
	if val.Min != nil || val.Max != nil {
		num, ok := models.Number(v)
		if !ok {
			return msgNumber, false
		}
		if val.Min != nil && num < *val.Min {
			return message(f, fmt.Sprintf("Must be at least %s", models.Stringify(*val.Min))), false
		}
		if val.Max != nil && num > *val.Max {
			return message(f, fmt.Sprintf("Must be at most %s", models.Stringify(*val.Max))), false
		}
	}
	if val.Pattern != "" {
		re, err := compile(val.Pattern)
		if err != nil || !re.MatchString(s) {
			return message(f, msgPattern), false
		}
	}
	return "", true
}

// IsEmail reports whether s is a bare address with a dotted domain.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}

func isMissing(f *models.FieldDefinition, v any) bool {
	if models.IsEmpty(v) {
		return true
	}
	if f.Type == models.FieldCheckbox {
		b, ok := v.(bool)
		return ok && !b
	}
	return false
}

func message(f *models.FieldDefinition, fallback string) string {
	if f.Validation != nil && f.Validation.Message != "" {
		return f.Validation.Message
	}
	return fallback
}

var patterns sync.Map // string -> *regexp.Regexp

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}
