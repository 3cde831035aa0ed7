package models

import (
	"sort"
	"strings"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

// FieldType is the input kind a field renders as.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldTextarea FieldType = "textarea"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldText, FieldEmail, FieldTel, FieldNumber, FieldSelect, FieldCheckbox, FieldTextarea:
		return true
	}
	return false
}

// Derivation names how a dependent field gets its value from its parent.
// The empty value asks the resolver to infer it from the schema.
type Derivation string

const (
	DeriveInfer        Derivation = ""
	DeriveOptions      Derivation = "options"
	DeriveParentOption Derivation = "parentOption"
	DeriveDialCode     Derivation = "dialCode"
	DeriveCopy         Derivation = "copy"
)

func (d Derivation) IsValid() bool {
	switch d {
	case DeriveInfer, DeriveOptions, DeriveParentOption, DeriveDialCode, DeriveCopy:
		return true
	}
	return false
}

// Option is one choice of a select field. ParentValue ties the option to a
// value of the field's parent for cascades.
type Option struct {
	Value       string `json:"value" yaml:"value"`
	Label       string `json:"label" yaml:"label"`
	ParentValue string `json:"parentValue,omitempty" yaml:"parentValue,omitempty"`
}

// Validation holds the optional per-field constraints. Pointers distinguish
// "unset" from zero.
type Validation struct {
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Message   string   `json:"message,omitempty" yaml:"message,omitempty"`
	MinLength *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// FieldDefinition describes one form field.
//
// Invariants:
//   - Hidden fields are never visible, whatever their conditional logic says
//   - AutoCalculated fields are never written from user input
//   - DependsOn never names the field itself
type FieldDefinition struct {
	ID               string            `json:"id" yaml:"id"`
	Type             FieldType         `json:"type" yaml:"type"`
	Label            string            `json:"label" yaml:"label"`
	Placeholder      string            `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required         bool              `json:"required,omitempty" yaml:"required,omitempty"`
	Order            int               `json:"order" yaml:"order"`
	Options          []Option          `json:"options,omitempty" yaml:"options,omitempty"`
	Validation       *Validation       `json:"validation,omitempty" yaml:"validation,omitempty"`
	DefaultValue     any               `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Hidden           bool              `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	AutoCalculated   bool              `json:"autoCalculated,omitempty" yaml:"autoCalculated,omitempty"`
	DependsOn        string            `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Derive           Derivation        `json:"derive,omitempty" yaml:"derive,omitempty"`
	IsIdentifier     bool              `json:"isIdentifier,omitempty" yaml:"isIdentifier,omitempty"`
	ConditionalLogic []ConditionalRule `json:"conditionalLogic,omitempty" yaml:"conditionalLogic,omitempty"`
}

// HasDefault reports whether the field declares a non-empty default.
func (f *FieldDefinition) HasDefault() bool {
	return !IsEmpty(f.DefaultValue)
}

// OptionByValue returns the option whose value equals v.
func (f *FieldDefinition) OptionByValue(v string) (Option, bool) {
	for _, o := range f.Options {
		if o.Value == v {
			return o, true
		}
	}
	return Option{}, false
}

// HasCascadeOptions reports whether any option is tied to a parent value.
func (f *FieldDefinition) HasCascadeOptions() bool {
	for _, o := range f.Options {
		if o.ParentValue != "" {
			return true
		}
	}
	return false
}

// FormSchema is an organization's registration form.
type FormSchema struct {
	OrgID          id.OrgID          `json:"orgId,omitempty" yaml:"orgId,omitempty"`
	OrgSlug        id.OrgSlug        `json:"orgSlug,omitempty" yaml:"orgSlug,omitempty"`
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	Title          string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	SuccessMessage string            `json:"successMessage,omitempty" yaml:"successMessage,omitempty"`
	Fields         []FieldDefinition `json:"fields" yaml:"fields"`
}

// Ordered returns the fields sorted by Order, ties broken by declaration index.
func (s *FormSchema) Ordered() []*FieldDefinition {
	out := make([]*FieldDefinition, len(s.Fields))
	for i := range s.Fields {
		out[i] = &s.Fields[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Field returns the field with the given id.
func (s *FormSchema) Field(fieldID string) (*FieldDefinition, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == fieldID {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// IdentifierFields returns identifier fields in display order.
func (s *FormSchema) IdentifierFields() []*FieldDefinition {
	var out []*FieldDefinition
	for _, f := range s.Ordered() {
		if f.IsIdentifier {
			out = append(out, f)
		}
	}
	return out
}

func (s *FormSchema) HasIdentifiers() bool {
	for i := range s.Fields {
		if s.Fields[i].IsIdentifier {
			return true
		}
	}
	return false
}

// EmailOf resolves the email of a value set: the first email-typed field by
// order with a value, falling back to an "email" entry.
func (s *FormSchema) EmailOf(values ValueSet) string {
	for _, f := range s.Ordered() {
		if f.Type != FieldEmail {
			continue
		}
		if e := NormalizeEmail(values.String(f.ID)); e != "" {
			return e
		}
	}
	return NormalizeEmail(values.String("email"))
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
