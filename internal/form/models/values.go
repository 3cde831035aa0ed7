package models

import (
	"math"
	"strconv"
	"strings"
)

// ValueSet maps field id to its current value. Values are string, float64
// or bool; ints are accepted and read as numbers. nil means unset.
type ValueSet map[string]any

// NewValueSet seeds one entry per field of schema, using each field's
// default when it has one.
func NewValueSet(schema *FormSchema) ValueSet {
	vs := make(ValueSet, len(schema.Fields))
	for i := range schema.Fields {
		f := &schema.Fields[i]
		if f.HasDefault() {
			vs[f.ID] = f.DefaultValue
		} else if f.Type == FieldCheckbox {
			vs[f.ID] = false
		} else {
			vs[f.ID] = ""
		}
	}
	return vs
}

// Clone returns a shallow copy. Values are scalars, so the copy is independent.
func (vs ValueSet) Clone() ValueSet {
	out := make(ValueSet, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}

// Merge returns a copy of vs with update applied.
func (vs ValueSet) Merge(update ValueSet) ValueSet {
	out := vs.Clone()
	for k, v := range update {
		out[k] = v
	}
	return out
}

// Only returns the entries whose keys are in ids.
func (vs ValueSet) Only(ids []string) ValueSet {
	out := make(ValueSet, len(ids))
	for _, k := range ids {
		if v, ok := vs[k]; ok {
			out[k] = v
		}
	}
	return out
}

// String renders the value for display and comparison.
func (vs ValueSet) String(fieldID string) string {
	return Stringify(vs[fieldID])
}

// IsEmpty reports whether the value counts as not filled in: nil, an empty
// or whitespace-only string.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Stringify renders a value the way the form would display it.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// Number reads v as a number. Numeric strings are accepted.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Equal compares two values as the form does. Two strings compare as text,
// so document numbers like "007" and "7" differ. When either side is a
// real number (a JSON number, a YAML int) both are compared numerically.
func Equal(a, b any) bool {
	if IsEmpty(a) && IsEmpty(b) {
		return true
	}
	_, textA := a.(string)
	_, textB := b.(string)
	if !textA || !textB {
		na, okA := Number(a)
		nb, okB := Number(b)
		if okA && okB {
			return na == nb
		}
	}
	return Stringify(a) == Stringify(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
