// Package query turns dotted field paths into join plans and builds the
// SELECT statements the persistence layer runs.
package query

import (
	"fmt"
	"strings"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// JoinType represents the type of SQL join
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the SQL keyword of the join type
func (j JoinType) String() string {
	if j == LeftJoin {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// AliasSeparator joins the field names of a join prefix into its alias
const AliasSeparator = "__"

// PathResolutionError is returned when a dotted path does not walk forward
// references of its root model
type PathResolutionError struct {
	Root   string
	Path   []string
	Reason string
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s.%s: %s", e.Root, strings.Join(e.Path, "."), e.Reason)
}

// JoinStep is one hop along forward references. Its identity is Prefix,
// the ordered field names leading to it.
type JoinStep struct {
	Prefix       []string
	Alias        string
	Table        string
	ParentAlias  string
	ParentColumn string
	Target       *schema.ModelMeta
	Type         JoinType
}

// Key identifies the step within a plan
func (s JoinStep) Key() string {
	return strings.Join(s.Prefix, ".")
}

// SQL renders the join clause
func (s JoinStep) SQL() string {
	return fmt.Sprintf("%s %s %s ON %s.%s = %s.%s",
		s.Type, s.Table, s.Alias, s.ParentAlias, s.ParentColumn, s.Alias, schema.IDField)
}

// ColumnRef is a column on a joined (or the root) table
type ColumnRef struct {
	Alias string
	Field *schema.FieldSpec
}

// String renders alias.column
func (c ColumnRef) String() string {
	return c.Alias + "." + c.Field.Name
}

// JoinPath is the resolution of one dotted path: the joins it needs, in
// order, and the column the terminal name refers to
type JoinPath struct {
	Root   *schema.ModelMeta
	Steps  []JoinStep
	Column ColumnRef
}

// Resolve walks path from root. Every name but the last must be a forward
// reference; the last must be a column of the model reached.
func Resolve(root *schema.ModelMeta, path []string) (JoinPath, error) {
	fail := func(format string, args ...any) (JoinPath, error) {
		return JoinPath{}, &PathResolutionError{Root: root.Name, Path: path, Reason: fmt.Sprintf(format, args...)}
	}
	if !root.HasTable() {
		return fail("%s model %s has no table to join from", root.Kind, root.Name)
	}
	if len(path) == 0 {
		return fail("empty path")
	}

	cur := root
	alias := root.TableName
	joinType := InnerJoin
	prefix := make([]string, 0, len(path)-1)
	steps := make([]JoinStep, 0, len(path)-1)

	for _, name := range path[:len(path)-1] {
		f, ok := cur.Field(name)
		if !ok {
			return fail("%s has no field %s", cur.Name, name)
		}
		switch f.Role {
		case schema.RoleForward:
		case schema.RoleBackpop:
			return fail("%s.%s is a backpop; paths can only follow forward references", cur.Name, f.Name)
		default:
			return fail("%s.%s is not a reference to another model", cur.Name, f.Name)
		}
		if f.Nullable {
			joinType = LeftJoin
		}

		prefix = append(prefix, f.Name)
		stepAlias := strings.Join(prefix, AliasSeparator)
		if strings.EqualFold(stepAlias, root.TableName) {
			// SQLite aliases are case-insensitive
			stepAlias += AliasSeparator
		}
		step := JoinStep{
			Prefix:       append([]string(nil), prefix...),
			Alias:        stepAlias,
			Table:        f.Target.TableName,
			ParentAlias:  alias,
			ParentColumn: f.Name,
			Target:       f.Target,
			Type:         joinType,
		}
		steps = append(steps, step)
		cur, alias = f.Target, step.Alias
	}

	last := path[len(path)-1]
	f, ok := cur.Field(last)
	if !ok {
		return fail("%s has no field %s", cur.Name, last)
	}
	if f.Role == schema.RoleBackpop {
		return fail("%s.%s is a backpop and has no column", cur.Name, f.Name)
	}
	return JoinPath{Root: root, Steps: steps, Column: ColumnRef{Alias: alias, Field: f}}, nil
}

// JoinPlan collects the joins of several paths from one root, emitting a
// join once however many paths share its prefix
type JoinPlan struct {
	root  *schema.ModelMeta
	steps []JoinStep
	index map[string]int
}

// NewJoinPlan starts an empty plan rooted at root
func NewJoinPlan(root *schema.ModelMeta) *JoinPlan {
	return &JoinPlan{root: root, index: make(map[string]int)}
}

// Root returns the model the plan is rooted at
func (p *JoinPlan) Root() *schema.ModelMeta {
	return p.root
}

// RootAlias is the alias of the root table
func (p *JoinPlan) RootAlias() string {
	return p.root.TableName
}

// Add resolves path and merges its joins into the plan
func (p *JoinPlan) Add(path []string) (ColumnRef, error) {
	jp, err := Resolve(p.root, path)
	if err != nil {
		return ColumnRef{}, err
	}
	for _, step := range jp.Steps {
		p.merge(step)
	}
	return jp.Column, nil
}

// Join adds the joins needed to reach the model at the end of prefix,
// which must consist of forward references only
func (p *JoinPlan) Join(prefix []string) (JoinStep, error) {
	if len(prefix) == 0 {
		return JoinStep{}, &PathResolutionError{Root: p.root.Name, Reason: "empty join prefix"}
	}
	// resolving prefix + id walks every name in prefix as a hop
	jp, err := Resolve(p.root, append(append([]string(nil), prefix...), schema.IDField))
	if err != nil {
		return JoinStep{}, err
	}
	for _, step := range jp.Steps {
		p.merge(step)
	}
	return jp.Steps[len(jp.Steps)-1], nil
}

func (p *JoinPlan) merge(step JoinStep) {
	if _, ok := p.index[step.Key()]; ok {
		return
	}
	p.index[step.Key()] = len(p.steps)
	p.steps = append(p.steps, step)
}

// Steps returns the joins in the order they were first needed
func (p *JoinPlan) Steps() []JoinStep {
	return append([]JoinStep(nil), p.steps...)
}

// SQL renders every join clause, one per line
func (p *JoinPlan) SQL() string {
	lines := make([]string, len(p.steps))
	for i, s := range p.steps {
		lines[i] = s.SQL()
	}
	return strings.Join(lines, "\n")
}
