package query

import (
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// Layout describes how a flat row of selected columns nests into records.
// Columns of a node come first, followed by the layouts of its joined
// forward fields in declaration order (a pre-order walk).
type Layout struct {
	Meta    *schema.ModelMeta
	Alias   string
	Prefix  []string
	Columns []*schema.FieldSpec

	// Children holds one entry per joined forward field. A field that was
	// not joined (see BuildLayout) has no entry; it is fetched by id.
	Children []*LayoutChild
}

// LayoutChild is a joined forward field of a layout node
type LayoutChild struct {
	Field  *schema.FieldSpec
	Layout *Layout
}

// Child returns the joined layout of field, if it was joined
func (l *Layout) Child(field *schema.FieldSpec) (*Layout, bool) {
	for _, c := range l.Children {
		if c.Field == field {
			return c.Layout, true
		}
	}
	return nil, false
}

// Width is the number of columns the layout consumes, children included
func (l *Layout) Width() int {
	n := len(l.Columns)
	for _, c := range l.Children {
		n += c.Layout.Width()
	}
	return n
}

// SelectColumns returns alias.column for every column in layout order
func (l *Layout) SelectColumns() []string {
	var out []string
	l.Walk(func(node *Layout) {
		for _, f := range node.Columns {
			out = append(out, node.Alias+"."+f.Name)
		}
	})
	return out
}

// Walk visits the layout nodes in pre-order
func (l *Layout) Walk(visit func(*Layout)) {
	stack := []*Layout{l}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(node)
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i].Layout)
		}
	}
}

// MaxLayoutJoins bounds the joins a load layout adds to its plan. SQLite
// joins at most 64 tables in one statement and predicates may need more.
const MaxLayoutJoins = 32

// BuildLayout lays out the columns of root. When plan is nil (adhoc
// queries) nothing is joined and every forward field is fetched by id;
// otherwise the joins are added to plan.
//
// Forward fields are joined breadth first, so nearer references win when
// the join budget runs out. A field is fetched by id instead of joined when
// it is a pointer to a model already on the path, which keeps the layout
// finite for self and mutually referencing models, or when MaxLayoutJoins
// joins were already laid out, which keeps wide reference graphs from
// multiplying joins under every prefix.
func BuildLayout(root *schema.ModelMeta, plan *JoinPlan) (*Layout, error) {
	alias := ""
	if plan != nil {
		alias = plan.RootAlias()
	}
	top := &Layout{Meta: root, Alias: alias, Columns: root.Columns()}
	if plan == nil {
		return top, nil
	}

	type frame struct {
		node *Layout
		path []*schema.ModelMeta
	}
	queue := []frame{{node: top, path: []*schema.ModelMeta{root.TableModel()}}}
	joins := 0
	for len(queue) > 0 {
		fr := queue[0]
		queue = queue[1:]

		for _, f := range fr.node.Meta.ForwardFields() {
			if f.Nullable && onPath(fr.path, f.Target) {
				continue
			}
			if joins == MaxLayoutJoins {
				continue
			}
			prefix := append(append([]string(nil), fr.node.Prefix...), f.Name)
			step, err := plan.Join(prefix)
			if err != nil {
				return nil, err
			}
			joins++
			child := &Layout{
				Meta:    f.Target,
				Alias:   step.Alias,
				Prefix:  prefix,
				Columns: f.Target.Columns(),
			}
			fr.node.Children = append(fr.node.Children, &LayoutChild{Field: f, Layout: child})

			path := append(append([]*schema.ModelMeta(nil), fr.path...), f.Target)
			queue = append(queue, frame{node: child, path: path})
		}
	}
	return top, nil
}

func onPath(path []*schema.ModelMeta, m *schema.ModelMeta) bool {
	for _, p := range path {
		if p == m {
			return true
		}
	}
	return false
}
