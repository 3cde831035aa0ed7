package models

// RuleAction is what a satisfied conditional rule does to its field.
type RuleAction string

const (
	ActionShow RuleAction = "show"
	ActionHide RuleAction = "hide"
)

func (a RuleAction) IsValid() bool {
	return a == ActionShow || a == ActionHide
}

// Logic combines a rule's conditions.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

func (l Logic) IsValid() bool {
	return l == LogicAnd || l == LogicOr
}

// Operator compares a field value against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition tests one field's current value.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// ConditionalRule shows or hides a field when its conditions hold.
type ConditionalRule struct {
	Action     RuleAction  `json:"action" yaml:"action"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Logic      Logic       `json:"logic" yaml:"logic"`
}
