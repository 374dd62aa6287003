package query

import (
	"fmt"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// SelectBuilder builds the SELECT statement that loads rows of a model
// together with the rows its forward references point at.
type SelectBuilder struct {
	root   *schema.ModelMeta
	plan   *JoinPlan
	layout *Layout

	conditions []string
	args       []any
	orderBy    []string
	limit      *int
	offset     *int

	err error
}

// NewSelect starts a statement selecting root and its joined references
func NewSelect(root *schema.ModelMeta) (*SelectBuilder, error) {
	if !root.HasTable() {
		return nil, &PathResolutionError{Root: root.Name, Reason: "adhoc models have no table to select from"}
	}
	plan := NewJoinPlan(root)
	layout, err := BuildLayout(root, plan)
	if err != nil {
		return nil, fmt.Errorf("lay out %s: %w", root.Name, err)
	}
	return &SelectBuilder{root: root, plan: plan, layout: layout}, nil
}

// Where adds a predicate template, ANDed with any earlier ones
func (sb *SelectBuilder) Where(template string, params map[string]any) *SelectBuilder {
	if sb.err != nil {
		return sb
	}
	text, args, err := RenderTemplate(template, sb.plan, params)
	if err != nil {
		sb.err = err
		return sb
	}
	sb.conditions = append(sb.conditions, text)
	sb.args = append(sb.args, args...)
	return sb
}

// WhereEqual adds root.column = ? for an already encoded value
func (sb *SelectBuilder) WhereEqual(column string, value any) *SelectBuilder {
	if sb.err != nil {
		return sb
	}
	col, err := sb.plan.Add([]string{column})
	if err != nil {
		sb.err = err
		return sb
	}
	if value == nil {
		sb.conditions = append(sb.conditions, col.String()+" IS NULL")
		return sb
	}
	sb.conditions = append(sb.conditions, col.String()+" = ?")
	sb.args = append(sb.args, value)
	return sb
}

// OrderBy adds an ordering term; field paths in braces are resolved
func (sb *SelectBuilder) OrderBy(term string) *SelectBuilder {
	if sb.err != nil {
		return sb
	}
	text, _, err := RenderTemplate(term, sb.plan, nil)
	if err != nil {
		sb.err = err
		return sb
	}
	sb.orderBy = append(sb.orderBy, text)
	return sb
}

// Limit sets the maximum number of rows
func (sb *SelectBuilder) Limit(n int) *SelectBuilder {
	sb.limit = &n
	return sb
}

// Offset sets the number of rows to skip
func (sb *SelectBuilder) Offset(n int) *SelectBuilder {
	sb.offset = &n
	return sb
}

// Layout returns how the selected columns nest into records
func (sb *SelectBuilder) Layout() *Layout {
	return sb.layout
}

// Plan returns the joins collected so far
func (sb *SelectBuilder) Plan() *JoinPlan {
	return sb.plan
}

// ToSQL renders the statement and its positional arguments
func (sb *SelectBuilder) ToSQL() (string, []any, error) {
	if sb.err != nil {
		return "", nil, sb.err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(sb.layout.SelectColumns(), ", "))
	b.WriteString("\nFROM ")
	b.WriteString(sb.root.TableName)
	if joins := sb.plan.SQL(); joins != "" {
		b.WriteString("\n")
		b.WriteString(joins)
	}

	if len(sb.conditions) == 1 {
		b.WriteString("\nWHERE ")
		b.WriteString(sb.conditions[0])
	} else if len(sb.conditions) > 1 {
		b.WriteString("\nWHERE (")
		b.WriteString(strings.Join(sb.conditions, ") AND ("))
		b.WriteString(")")
	}

	if len(sb.orderBy) > 0 {
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(sb.orderBy, ", "))
	}
	if sb.limit != nil {
		fmt.Fprintf(&b, "\nLIMIT %d", *sb.limit)
	}
	if sb.offset != nil {
		if sb.limit == nil {
			b.WriteString("\nLIMIT -1")
		}
		fmt.Fprintf(&b, " OFFSET %d", *sb.offset)
	}

	return b.String(), append([]any(nil), sb.args...), nil
}
