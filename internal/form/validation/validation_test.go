package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func registrationSchema() *models.FormSchema {
	return &models.FormSchema{Fields: []models.FieldDefinition{
		{ID: "email", Type: models.FieldEmail, Required: true, Order: 1, IsIdentifier: true},
		{ID: "document", Type: models.FieldText, Required: true, Order: 2, IsIdentifier: true,
			Validation: &models.Validation{Pattern: `^[0-9]+$`, Message: "Digits only"}},
		{ID: "name", Type: models.FieldText, Required: true, Order: 3,
			Validation: &models.Validation{MinLength: intPtr(2), MaxLength: intPtr(40)}},
		{ID: "age", Type: models.FieldNumber, Order: 4,
			Validation: &models.Validation{Min: floatPtr(14), Max: floatPtr(120)}},
		{ID: "country", Type: models.FieldSelect, Order: 5,
			Options: []models.Option{{Value: "CO"}, {Value: "US"}}},
		{ID: "terms", Type: models.FieldCheckbox, Required: true, Order: 6},
		{ID: "company", Type: models.FieldText, Required: true, Order: 7,
			ConditionalLogic: []models.ConditionalRule{{
				Action: models.ActionShow, Logic: models.LogicAnd,
				Conditions: []models.Condition{{Field: "country", Operator: models.OpEquals, Value: "US"}},
			}}},
		{ID: "internal_code", Type: models.FieldText, Required: true, Hidden: true, Order: 8},
	}}
}

func validValues() models.ValueSet {
	return models.ValueSet{
		"email":         "ana@example.com",
		"document":      "1020304050",
		"name":          "Ana",
		"age":           "31",
		"country":       "CO",
		"terms":         true,
		"company":       "",
		"internal_code": "",
	}
}

func TestValidate(t *testing.T) {
	schema := registrationSchema()

	t.Run("valid set", func(t *testing.T) {
		errs := Validate(schema, validValues())
		assert.True(t, errs.Valid(), errs)
		assert.NoError(t, errs.Err())
	})

	tests := []struct {
		name  string
		field string
		value any
		want  string
	}{
		{"missing email", "email", "", msgRequired},
		{"whitespace counts as missing", "name", "   ", msgRequired},
		{"nil counts as missing", "name", nil, msgRequired},
		{"bad email", "email", "ana@", msgEmail},
		{"email with display name", "email", "Ana <ana@example.com>", msgEmail},
		{"pattern uses custom message", "document", "10-20", "Digits only"},
		{"too short", "name", "A", "Must be at least 2 characters"},
		{"not a number", "age", "thirty", msgNumber},
		{"below minimum", "age", 10, "Must be at least 14"},
		{"above maximum", "age", 130.5, "Must be at most 120"},
		{"unknown option", "country", "BR", msgOption},
		{"unchecked required checkbox", "terms", false, msgRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validValues()
			values[tt.field] = tt.value
			errs := Validate(schema, values)
			require.Len(t, errs, 1, errs)
			assert.Equal(t, tt.want, errs[tt.field])
		})
	}

	t.Run("required field becomes checked once visible", func(t *testing.T) {
		values := validValues()
		values["country"] = "US"
		errs := Validate(schema, values)
		assert.Equal(t, Errors{"company": msgRequired}, errs)
	})

	t.Run("optional empty fields skip format checks", func(t *testing.T) {
		values := validValues()
		values["age"] = ""
		assert.True(t, Validate(schema, values).Valid())
	})
}

func TestValidateSubset(t *testing.T) {
	schema := registrationSchema()
	values := models.ValueSet{"email": "not-an-email", "document": ""}

	errs := ValidateSubset(schema, values, []string{"email", "document", "unknown"})
	assert.Equal(t, Errors{"email": msgEmail, "document": msgRequired}, errs)
	assert.Equal(t, []string{"document", "email"}, errs.Fields())
}

func TestErrors_CarryValidationCode(t *testing.T) {
	err := Validate(registrationSchema(), models.ValueSet{}).Err()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	var fieldErrs Errors
	require.True(t, errors.As(err, &fieldErrs))
	assert.Contains(t, fieldErrs.FieldMessages(), "email")
}

func TestIsEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", "first.last+tag@example.org"} {
		assert.True(t, IsEmail(ok), ok)
	}
	for _, bad := range []string{"", "a@b", "a@b.", "@b.co", "a b@c.co", "a@b.co, c@d.co"} {
		assert.False(t, IsEmail(bad), bad)
	}
}
