package segmentation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// numericShape guards ::numeric casts: rows whose field value is not
// number-shaped fail the condition instead of erroring the whole query.
const numericShape = `^-?[0-9]+(\.[0-9]+)?$`

var numericShapeRE = regexp.MustCompile(numericShape)

const contactColumns = `c.id, c.workspace_id, c.email, c.first_name, c.last_name,
	c.custom_fields, c.tags, c.status, c.source,
	c.subscribed_at, c.unsubscribed_at, c.created_at, c.updated_at`

// QueryBuilder compiles filter rules into a SQL query over the contacts
// table. It is stateful per build (positional arg counter) and not safe for
// concurrent use; create one per evaluation.
type QueryBuilder struct {
	args        []interface{}
	argCounter  int
	workspaceID string
	audienceID  string
}

// NewQueryBuilder creates a QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{args: make([]interface{}, 0), argCounter: 1}
}

// SetWorkspaceID sets the workspace filter. Required.
func (qb *QueryBuilder) SetWorkspaceID(id string) *QueryBuilder {
	qb.workspaceID = id
	return qb
}

// SetAudienceID restricts evaluation to members of the audience. Evaluation
// is always audience AND filter, never filter alone substituting for
// membership.
func (qb *QueryBuilder) SetAudienceID(id string) *QueryBuilder {
	qb.audienceID = id
	return qb
}

// nextArg registers a query argument and returns its placeholder.
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

// BuildSelect builds the full contact SELECT for the given rules.
func (qb *QueryBuilder) BuildSelect(rules FilterRules) (string, []interface{}, error) {
	return qb.build("SELECT "+contactColumns+"\nFROM contacts c", rules, "\nORDER BY c.created_at")
}

// BuildCount builds the matching COUNT query.
func (qb *QueryBuilder) BuildCount(rules FilterRules) (string, []interface{}, error) {
	return qb.build("SELECT COUNT(*) FROM contacts c", rules, "")
}

func (qb *QueryBuilder) build(selectClause string, rules FilterRules, suffix string) (string, []interface{}, error) {
	if err := rules.Validate(); err != nil {
		return "", nil, err
	}

	// Reset state
	qb.args = make([]interface{}, 0)
	qb.argCounter = 1

	query := selectClause
	if qb.audienceID != "" {
		query += fmt.Sprintf("\nJOIN audience_contacts ac ON ac.contact_id = c.id AND ac.audience_id = %s",
			qb.nextArg(qb.audienceID))
	}

	where := []string{fmt.Sprintf("c.workspace_id = %s", qb.nextArg(qb.workspaceID))}

	parts := make([]string, 0, len(rules.Conditions))
	for _, cond := range rules.Conditions {
		if sql := qb.buildCondition(cond); sql != "" {
			parts = append(parts, sql)
		}
	}
	if len(parts) > 0 {
		joiner := " AND "
		if rules.Operator == LogicOr {
			joiner = " OR "
		}
		where = append(where, "("+strings.Join(parts, joiner)+")")
	}

	query += "\nWHERE " + strings.Join(where, "\n  AND ")
	query += suffix
	return query, qb.args, nil
}

// buildCondition compiles one condition. An unknown field/operator
// combination returns "" and the condition degrades to a no-op.
func (qb *QueryBuilder) buildCondition(cond Condition) string {
	if !cond.Operator.IsKnown() {
		return ""
	}
	if cond.Field == "tags" {
		return qb.buildTagCondition(cond)
	}
	if col, ok := standardFields[cond.Field]; ok {
		return qb.buildColumnCondition(col, cond)
	}
	return qb.buildCustomFieldCondition(cond)
}

// buildColumnCondition compiles a condition over a fixed contact column.
func (qb *QueryBuilder) buildColumnCondition(col string, cond Condition) string {
	val := valueString(cond.Value)

	switch cond.Operator {
	case OpEquals:
		return fmt.Sprintf("%s = %s", col, qb.nextArg(val))
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", col, qb.nextArg(val))
	case OpContains:
		return fmt.Sprintf("%s ILIKE %s", col, qb.nextArg("%"+val+"%"))
	case OpNotContains:
		return fmt.Sprintf("%s NOT ILIKE %s", col, qb.nextArg("%"+val+"%"))
	case OpStartsWith:
		return fmt.Sprintf("%s ILIKE %s", col, qb.nextArg(val+"%"))
	case OpEndsWith:
		return fmt.Sprintf("%s ILIKE %s", col, qb.nextArg("%"+val))
	case OpGreaterThan:
		return qb.numericCompare(col, ">", val)
	case OpLessThan:
		return qb.numericCompare(col, "<", val)
	case OpIn:
		return fmt.Sprintf("%s = ANY(%s)", col, qb.nextArg(pq.Array(valueList(cond.Value))))
	case OpNotIn:
		return fmt.Sprintf("%s <> ALL(%s)", col, qb.nextArg(pq.Array(valueList(cond.Value))))
	case OpExists:
		return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", col, col)
	case OpNotExists:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col)
	}
	return ""
}

// buildCustomFieldCondition compiles a condition over the custom_fields JSONB
// map. The key is always passed as a query argument, never interpolated.
func (qb *QueryBuilder) buildCustomFieldCondition(cond Condition) string {
	val := valueString(cond.Value)
	if (cond.Operator == OpGreaterThan || cond.Operator == OpLessThan) && !numericShapeRE.MatchString(val) {
		// Bail before registering the key arg so no orphan bind is left behind.
		return ""
	}
	field := fmt.Sprintf("c.custom_fields->>%s", qb.nextArg(cond.Field))

	switch cond.Operator {
	case OpEquals:
		return fmt.Sprintf("%s = %s", field, qb.nextArg(val))
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", field, qb.nextArg(val))
	case OpContains:
		return fmt.Sprintf("%s ILIKE %s", field, qb.nextArg("%"+val+"%"))
	case OpNotContains:
		return fmt.Sprintf("%s NOT ILIKE %s", field, qb.nextArg("%"+val+"%"))
	case OpStartsWith:
		return fmt.Sprintf("%s ILIKE %s", field, qb.nextArg(val+"%"))
	case OpEndsWith:
		return fmt.Sprintf("%s ILIKE %s", field, qb.nextArg("%"+val))
	case OpGreaterThan:
		return qb.numericCompare(field, ">", val)
	case OpLessThan:
		return qb.numericCompare(field, "<", val)
	case OpIn:
		return fmt.Sprintf("%s = ANY(%s)", field, qb.nextArg(pq.Array(valueList(cond.Value))))
	case OpNotIn:
		return fmt.Sprintf("%s <> ALL(%s)", field, qb.nextArg(pq.Array(valueList(cond.Value))))
	case OpExists:
		return fmt.Sprintf("c.custom_fields ? %s", qb.nextArg(cond.Field))
	case OpNotExists:
		return fmt.Sprintf("NOT (c.custom_fields ? %s)", qb.nextArg(cond.Field))
	}
	return ""
}

// buildTagCondition compiles a condition over the tags text array.
func (qb *QueryBuilder) buildTagCondition(cond Condition) string {
	val := valueString(cond.Value)

	switch cond.Operator {
	case OpEquals, OpContains:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(c.tags) AS t WHERE t ILIKE %s)", qb.nextArg(val))
	case OpNotEquals, OpNotContains:
		return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM unnest(c.tags) AS t WHERE t ILIKE %s)", qb.nextArg(val))
	case OpStartsWith:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(c.tags) AS t WHERE t ILIKE %s)", qb.nextArg(val+"%"))
	case OpEndsWith:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(c.tags) AS t WHERE t ILIKE %s)", qb.nextArg("%"+val))
	case OpIn:
		return fmt.Sprintf("c.tags && %s", qb.nextArg(pq.Array(valueList(cond.Value))))
	case OpNotIn:
		return fmt.Sprintf("NOT (c.tags && %s)", qb.nextArg(pq.Array(valueList(cond.Value))))
	case OpExists:
		return "cardinality(c.tags) > 0"
	case OpNotExists:
		return "cardinality(c.tags) = 0"
	}
	return ""
}

// numericCompare emits a guarded numeric comparison. Non-numeric field values
// fail the condition; a non-numeric comparison value makes it a no-op.
func (qb *QueryBuilder) numericCompare(expr, op, val string) string {
	if !numericShapeRE.MatchString(val) {
		return ""
	}
	return fmt.Sprintf("(%s ~ '%s' AND (%s)::numeric %s (%s)::numeric)",
		expr, numericShape, expr, op, qb.nextArg(val))
}
