// Package rules decides field visibility from conditional logic.
//
// Everything here is pure: the same field and values always produce the
// same answer, and nothing is read from or written to anywhere else.
package rules

import (
	"strings"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
)

// IsVisible reports whether field is shown for the current values.
//
// Rule precedence:
//  1. Hard-hidden fields are never visible
//  2. No rules: visible
//  3. Show rules present: visible only if at least one show rule holds
//  4. Any hide rule that holds wins over everything above
func IsVisible(field *models.FieldDefinition, values models.ValueSet) bool {
	if field.Hidden {
		return false
	}
	if len(field.ConditionalLogic) == 0 {
		return true
	}

	hasShow := false
	shown := false
	for i := range field.ConditionalLogic {
		rule := &field.ConditionalLogic[i]
		if rule.Action != models.ActionShow {
			continue
		}
		hasShow = true
		if EvaluateRule(rule, values) {
			shown = true
			break
		}
	}
	visible := !hasShow || shown

	for i := range field.ConditionalLogic {
		rule := &field.ConditionalLogic[i]
		if rule.Action == models.ActionHide && EvaluateRule(rule, values) {
			return false
		}
	}
	return visible
}

// Visibility evaluates every field of schema.
func Visibility(schema *models.FormSchema, values models.ValueSet) map[string]bool {
	out := make(map[string]bool, len(schema.Fields))
	for i := range schema.Fields {
		f := &schema.Fields[i]
		out[f.ID] = IsVisible(f, values)
	}
	return out
}

// EvaluateRule combines the rule's conditions with its logic. An "and" over
// no conditions holds, an "or" over none does not; the schema checker
// rejects empty rules so this only matters for unchecked schemas.
func EvaluateRule(rule *models.ConditionalRule, values models.ValueSet) bool {
	if rule.Logic == models.LogicOr {
		for _, c := range rule.Conditions {
			if EvaluateCondition(c, values) {
				return true
			}
		}
		return false
	}
	for _, c := range rule.Conditions {
		if !EvaluateCondition(c, values) {
			return false
		}
	}
	return true
}

// EvaluateCondition tests one condition. A field that has not been filled in
// only ever satisfies "equals" against an empty target.
func EvaluateCondition(c models.Condition, values models.ValueSet) bool {
	actual := values[c.Field]
	if models.IsEmpty(actual) {
		return c.Operator == models.OpEquals && models.IsEmpty(c.Value)
	}

	switch c.Operator {
	case models.OpEquals:
		return models.Equal(actual, c.Value)
	case models.OpNotEquals:
		return !models.Equal(actual, c.Value)
	case models.OpContains:
		return strings.Contains(models.Stringify(actual), models.Stringify(c.Value))
	case models.OpNotContains:
		return !strings.Contains(models.Stringify(actual), models.Stringify(c.Value))
	case models.OpGreaterThan:
		a, b, ok := numbers(actual, c.Value)
		return ok && a > b
	case models.OpLessThan:
		a, b, ok := numbers(actual, c.Value)
		return ok && a < b
	default:
		return false
	}
}

func numbers(a, b any) (float64, float64, bool) {
	na, okA := models.Number(a)
	nb, okB := models.Number(b)
	return na, nb, okA && okB
}
