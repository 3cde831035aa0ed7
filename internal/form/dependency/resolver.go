// Package dependency computes values that follow from other values: cascading
// selects, auto-calculated fields and defaults for hidden fields.
package dependency

import (
	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/form/rules"
)

// Recompute returns the fields whose values must change for values to be
// consistent with schema. Fields that are already correct are not included,
// so feeding values merged with the result back in yields an empty update.
//
// Passes repeat until nothing changes, bounded by the number of fields; the
// schema checker guarantees acyclic dependencies so the bound is never hit
// for a checked schema.
func Recompute(schema *models.FormSchema, values models.ValueSet) models.ValueSet {
	current := values.Clone()
	changedIDs := map[string]struct{}{}
	ordered := schema.Ordered()

	for pass := 0; pass <= len(ordered); pass++ {
		visible := rules.Visibility(schema, current)
		changed := false
		for _, f := range ordered {
			next, ok := derive(schema, f, current, visible[f.ID])
			if !ok || same(current[f.ID], next) {
				continue
			}
			current[f.ID] = next
			changedIDs[f.ID] = struct{}{}
			changed = true
		}
		if !changed {
			break
		}
	}

	update := models.ValueSet{}
	for fieldID := range changedIDs {
		if !same(values[fieldID], current[fieldID]) {
			update[fieldID] = current[fieldID]
		}
	}
	return update
}

// IsOwned reports whether the resolver, not the user, owns the field's value.
func IsOwned(f *models.FieldDefinition) bool {
	return f.AutoCalculated
}

// DerivationFor returns how f follows its parent, inferring it when the
// schema leaves it unset.
func DerivationFor(f, parent *models.FieldDefinition) models.Derivation {
	if f.Derive != models.DeriveInfer {
		return f.Derive
	}
	if f.HasCascadeOptions() {
		return models.DeriveOptions
	}
	if parent != nil && parent.HasCascadeOptions() {
		return models.DeriveParentOption
	}
	return models.DeriveDialCode
}

// FilterOptions returns the options of f available for the parent's value.
func FilterOptions(f *models.FieldDefinition, parentValue any) []models.Option {
	if !f.HasCascadeOptions() {
		return f.Options
	}
	pv := models.Stringify(parentValue)
	var out []models.Option
	for _, o := range f.Options {
		if o.ParentValue == "" || o.ParentValue == pv {
			out = append(out, o)
		}
	}
	return out
}

func derive(schema *models.FormSchema, f *models.FieldDefinition, values models.ValueSet, visible bool) (any, bool) {
	owned := IsOwned(f) && f.DependsOn != ""
	if !visible && !owned && f.HasDefault() {
		return f.DefaultValue, true
	}
	if f.DependsOn == "" {
		return nil, false
	}
	parent, ok := schema.Field(f.DependsOn)
	if !ok {
		return nil, false
	}
	parentValue := values[f.DependsOn]
	derivation := DerivationFor(f, parent)
	if models.IsEmpty(parentValue) {
		switch {
		case owned:
			return fallback(f), true
		case derivation == models.DeriveOptions && !models.IsEmpty(values[f.ID]):
			// a cascade choice means nothing without its parent
			return "", true
		}
		return nil, false
	}

	var derived string
	switch derivation {
	case models.DeriveOptions:
		options := FilterOptions(f, parentValue)
		if !f.AutoCalculated {
			// user-chosen cascade: drop a choice the new parent no longer offers
			cur := values.String(f.ID)
			if cur == "" || !visible {
				return nil, false
			}
			for _, o := range options {
				if o.Value == cur {
					return nil, false
				}
			}
			return "", true
		}
		for _, o := range options {
			if o.ParentValue != "" {
				derived = o.Value
				break
			}
		}
	case models.DeriveParentOption:
		if opt, found := parent.OptionByValue(models.Stringify(parentValue)); found {
			derived = opt.ParentValue
		}
	case models.DeriveDialCode:
		derived, _ = DialCode(models.Stringify(parentValue))
	case models.DeriveCopy:
		derived = models.Stringify(parentValue)
	default:
		return nil, false
	}
	if derived == "" {
		if owned {
			return fallback(f), true
		}
		return nil, false
	}
	if !f.AutoCalculated && !models.IsEmpty(values[f.ID]) {
		// prefill only; never overwrite what the user typed
		return nil, false
	}
	return derived, true
}

// fallback is what an owned field holds when its parent yields nothing.
func fallback(f *models.FieldDefinition) any {
	if f.HasDefault() {
		return f.DefaultValue
	}
	return ""
}

func same(a, b any) bool {
	if models.IsEmpty(a) && models.IsEmpty(b) {
		return true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	if _, ok := b.(bool); ok {
		return false
	}
	return models.Stringify(a) == models.Stringify(b)
}
