// Package schema checks and loads organization registration forms.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

// Problem is one configuration defect of a form.
type Problem struct {
	Field   string
	Message string
}

func (p Problem) String() string {
	if p.Field == "" {
		return p.Message
	}
	return fmt.Sprintf("%s: %s", p.Field, p.Message)
}

// CheckError lists every problem found in a form. It carries the
// configuration error code.
type CheckError struct {
	Problems []Problem
}

func (e *CheckError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "invalid form configuration: " + strings.Join(parts, "; ")
}

func (e *CheckError) Unwrap() error {
	return dErrors.New(dErrors.CodeConfiguration, "invalid form configuration")
}

// Normalize fills in values a form document may omit: rules without logic
// combine with "and".
func Normalize(s *models.FormSchema) {
	for i := range s.Fields {
		f := &s.Fields[i]
		f.ID = strings.TrimSpace(f.ID)
		f.DependsOn = strings.TrimSpace(f.DependsOn)
		for j := range f.ConditionalLogic {
			if f.ConditionalLogic[j].Logic == "" {
				f.ConditionalLogic[j].Logic = models.LogicAnd
			}
		}
	}
}

// Check reports every structural defect of s. A form that passes can be
// evaluated and resolved without further guards.
func Check(s *models.FormSchema) error {
	var problems []Problem
	add := func(field, format string, args ...any) {
		problems = append(problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	ids := make(map[string]int, len(s.Fields))
	orders := make(map[int]string, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.ID == "" {
			add(fmt.Sprintf("fields[%d]", i), "missing id")
			continue
		}
		if _, dup := ids[f.ID]; dup {
			add(f.ID, "duplicate field id")
		}
		ids[f.ID] = i
		if other, dup := orders[f.Order]; dup {
			add(f.ID, "order %d already used by %s", f.Order, other)
		} else {
			orders[f.Order] = f.ID
		}
	}

	for i := range s.Fields {
		f := &s.Fields[i]
		if f.ID == "" {
			continue
		}
		if !f.Type.IsValid() {
			add(f.ID, "unknown field type %q", f.Type)
		}
		if !f.Derive.IsValid() {
			add(f.ID, "unknown derivation %q", f.Derive)
		}
		if f.DependsOn != "" {
			if f.DependsOn == f.ID {
				add(f.ID, "field depends on itself")
			} else if _, ok := ids[f.DependsOn]; !ok {
				add(f.ID, "dependsOn references unknown field %q", f.DependsOn)
			}
		} else if f.HasCascadeOptions() {
			add(f.ID, "options carry parentValue but the field has no dependsOn")
		}
		if f.IsIdentifier && f.Hidden {
			add(f.ID, "identifier fields cannot be hidden")
		}
		if f.IsIdentifier && len(f.ConditionalLogic) > 0 {
			add(f.ID, "identifier fields cannot carry conditional logic")
		}
		checkRules(f, ids, add)
		checkValidation(f, add)
	}

	for _, cycle := range dependencyCycles(s, ids) {
		add(cycle[0], "dependency cycle %s", strings.Join(cycle, " -> "))
	}

	if len(problems) == 0 {
		return nil
	}
	return &CheckError{Problems: problems}
}

func checkRules(f *models.FieldDefinition, ids map[string]int, add func(string, string, ...any)) {
	for j, rule := range f.ConditionalLogic {
		if !rule.Action.IsValid() {
			add(f.ID, "rule %d: unknown action %q", j, rule.Action)
		}
		if !rule.Logic.IsValid() {
			add(f.ID, "rule %d: unknown logic %q", j, rule.Logic)
		}
		if len(rule.Conditions) == 0 {
			add(f.ID, "rule %d: no conditions", j)
		}
		for _, c := range rule.Conditions {
			if !c.Operator.IsValid() {
				add(f.ID, "rule %d: unknown operator %q", j, c.Operator)
			}
			if _, ok := ids[c.Field]; !ok {
				add(f.ID, "rule %d: condition references unknown field %q", j, c.Field)
			}
		}
	}
}

func checkValidation(f *models.FieldDefinition, add func(string, string, ...any)) {
	v := f.Validation
	if v == nil {
		return
	}
	if v.Pattern != "" {
		if _, err := regexp.Compile(v.Pattern); err != nil {
			add(f.ID, "invalid pattern: %v", err)
		}
	}
	if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
		add(f.ID, "minLength exceeds maxLength")
	}
	if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
		add(f.ID, "min exceeds max")
	}
}

// dependencyCycles follows dependsOn links. Each field has at most one
// parent, so every cycle is found by walking from its members.
func dependencyCycles(s *models.FormSchema, ids map[string]int) [][]string {
	parent := make(map[string]string, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.DependsOn != "" && f.DependsOn != f.ID {
			if _, ok := ids[f.DependsOn]; ok {
				parent[f.ID] = f.DependsOn
			}
		}
	}

	var cycles [][]string
	reported := map[string]bool{}
	for i := range s.Fields {
		start := s.Fields[i].ID
		seen := map[string]int{}
		var path []string
		for cur := start; cur != ""; cur = parent[cur] {
			if at, ok := seen[cur]; ok {
				cycle := append(path[at:], cur)
				if !reported[cur] {
					for _, member := range cycle {
						reported[member] = true
					}
					cycles = append(cycles, cycle)
				}
				break
			}
			if reported[cur] {
				break
			}
			seen[cur] = len(path)
			path = append(path, cur)
		}
	}
	return cycles
}
