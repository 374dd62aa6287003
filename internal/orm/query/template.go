package query

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// TemplateError is returned for a malformed predicate template or a
// mismatch between its parameters and the values supplied
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("predicate %q: %s", e.Template, e.Reason)
}

// A predicate template is SQLite text with two kinds of placeholders:
//
//	{team.league.name}  a field path, rendered as alias.column
//	:min_rating         a named parameter, rendered as ? with its value bound
//
// Quoted SQL strings are copied verbatim.

// Template is a parsed predicate template
type Template struct {
	Parts []*TemplatePart `parser:"@@*"`
}

// TemplatePart is one of a field path, a parameter or literal SQL text
type TemplatePart struct {
	Field *FieldRef `parser:"  @@"`
	Param *ParamRef `parser:"| @@"`
	Text  *TextRun  `parser:"| @@"`
}

// FieldRef parses: '{' name ( '.' name )* '}'
type FieldRef struct {
	Names []string `parser:"Open Whitespace? @Ident ( Dot @Ident )* Whitespace? Close"`
}

// ParamRef parses: ':' name
type ParamRef struct {
	Name string `parser:"@Param"`
}

// TextRun is any SQL text between placeholders
type TextRun struct {
	Value string `parser:"@(Ident | Dot | String | Whitespace | Other)"`
}

var templateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Param", Pattern: `:[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Open", Pattern: `\{`},
	{Name: "Close", Pattern: `\}`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Other", Pattern: `[^{}:'a-zA-Z_.\s]+|:`},
})

var buildTemplateParser = sync.OnceValues(func() (*participle.Parser[Template], error) {
	return participle.Build[Template](
		participle.Lexer(templateLexer),
		participle.UseLookahead(2),
	)
})

// ParseTemplate parses predicate text
func ParseTemplate(text string) (*Template, error) {
	parser, err := buildTemplateParser()
	if err != nil {
		return nil, fmt.Errorf("build template parser: %w", err)
	}
	tmpl, err := parser.ParseString("predicate", text)
	if err != nil {
		return nil, &TemplateError{Template: text, Reason: err.Error()}
	}
	for _, p := range tmpl.Parts {
		if p.Param != nil {
			p.Param.Name = strings.TrimPrefix(p.Param.Name, ":")
		}
	}
	return tmpl, nil
}

// Paths returns the field paths referenced by the template
func (t *Template) Paths() [][]string {
	var out [][]string
	for _, p := range t.Parts {
		if p.Field != nil {
			out = append(out, p.Field.Names)
		}
	}
	return out
}

// Params returns the parameter names in order of appearance, with repeats
func (t *Template) Params() []string {
	var out []string
	for _, p := range t.Parts {
		if p.Param != nil {
			out = append(out, p.Param.Name)
		}
	}
	return out
}

// Render writes the template as SQL. Field paths are resolved against plan,
// which gains any joins they need; parameters become positional
// placeholders with their values appended to the returned args. Every
// parameter must be supplied and every supplied parameter used.
//
// A nil plan renders raw SQL for adhoc models, where field paths have no
// root to resolve against.
func (t *Template) Render(source string, plan *JoinPlan, params map[string]any) (string, []any, error) {
	var (
		b    strings.Builder
		args []any
		used = make(map[string]bool, len(params))
	)
	for _, p := range t.Parts {
		switch {
		case p.Field != nil:
			if plan == nil {
				return "", nil, &TemplateError{Template: source, Reason: fmt.Sprintf("field path {%s} needs a table model", strings.Join(p.Field.Names, "."))}
			}
			col, err := plan.Add(relativePath(plan, p.Field.Names))
			if err != nil {
				return "", nil, err
			}
			b.WriteString(col.String())

		case p.Param != nil:
			v, ok := params[p.Param.Name]
			if !ok {
				return "", nil, &TemplateError{Template: source, Reason: fmt.Sprintf("no value for parameter :%s", p.Param.Name)}
			}
			used[p.Param.Name] = true
			b.WriteString("?")
			args = append(args, v)

		default:
			b.WriteString(p.Text.Value)
		}
	}

	var unused []string
	for name := range params {
		if !used[name] {
			unused = append(unused, ":"+name)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return "", nil, &TemplateError{Template: source, Reason: "unused parameters " + strings.Join(unused, ", ")}
	}
	return b.String(), args, nil
}

// relativePath drops a leading root model name, so {Athlete.team.name}
// and {team.name} are equivalent
func relativePath(plan *JoinPlan, names []string) []string {
	root := plan.Root()
	if len(names) > 1 && (names[0] == root.Name || names[0] == root.TableName) {
		if _, isField := root.Field(names[0]); !isField {
			return names[1:]
		}
	}
	return names
}

// RenderTemplate parses and renders text in one step
func RenderTemplate(text string, plan *JoinPlan, params map[string]any) (string, []any, error) {
	tmpl, err := ParseTemplate(text)
	if err != nil {
		return "", nil, err
	}
	return tmpl.Render(text, plan, params)
}
