// Package segmentation evaluates declarative segment filter rules against the
// contact store. The rule tree is one level deep: a flat list of conditions
// combined with a single AND/OR.
//
// Compilation is split in two so the semantics stay unit-testable without a
// database: QueryBuilder turns rules into a SQL fragment with positional
// args, and Engine binds the fragment to *sql.DB.
package segmentation

import (
	"fmt"
	"strings"
)

// Operator is a typed comparison operator in a filter condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

var knownOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpNotContains: true,
	OpStartsWith: true, OpEndsWith: true,
	OpGreaterThan: true, OpLessThan: true,
	OpIn: true, OpNotIn: true,
	OpExists: true, OpNotExists: true,
}

// IsKnown reports whether the operator is one the evaluator understands.
// Unknown operators degrade a condition to a no-op rather than failing the
// whole evaluation, so the UI can preview rules while they're being edited.
func (o Operator) IsKnown() bool { return knownOperators[o] }

// LogicOperator combines the conditions of a rule set.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// Condition is one field/operator/value comparison. Field is either a fixed
// contact column or an arbitrary key into the contact's custom-field map.
// Value may be a string or, for in/not_in, a list of strings.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// FilterRules is the full rule set for a segment.
type FilterRules struct {
	Operator   LogicOperator `json:"operator"`
	Conditions []Condition   `json:"conditions"`
}

// Validate checks the rule shape. Unknown operators are not an error here;
// they are skipped at build time.
func (r FilterRules) Validate() error {
	if r.Operator != LogicAnd && r.Operator != LogicOr {
		return fmt.Errorf("invalid logic operator %q", r.Operator)
	}
	for i, c := range r.Conditions {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
	}
	return nil
}

// standardFields maps API field names to contact table columns. Anything not
// listed here is treated as a custom-field key.
var standardFields = map[string]string{
	"email":      "c.email",
	"first_name": "c.first_name",
	"firstName":  "c.first_name",
	"last_name":  "c.last_name",
	"lastName":   "c.last_name",
	"status":     "c.status",
	"source":     "c.source",
}

// valueString coerces a condition value to its string form.
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// valueList coerces a condition value to a string list for in/not_in.
func valueList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, valueString(item))
		}
		return out
	default:
		return []string{valueString(t)}
	}
}
