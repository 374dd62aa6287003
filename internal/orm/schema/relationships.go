package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// collectionSuffixes are stripped from a backpop field name before it is
// matched against candidate forward field names, longest first
var collectionSuffixes = []string{"_list", "_set", "_of", "s"}

// ResolveBackpop matches a backpop field on owner to the single forward
// field on the related model that points back at owner. Results are
// memoized on the owner's metadata.
func (r *Registry) ResolveBackpop(owner *ModelMeta, field string) (BackpopEdge, error) {
	f, ok := owner.Field(field)
	if !ok {
		return BackpopEdge{}, fmt.Errorf("%w: %s has no field %s", ErrModelDefinition, owner.Name, field)
	}
	if f.Role != RoleBackpop {
		return BackpopEdge{}, fmt.Errorf("%w: %s.%s is a %s field, not a backpop", ErrModelDefinition, owner.Name, f.Name, f.Role)
	}
	if e, ok := owner.Backpop(f.Name); ok {
		return e, nil
	}

	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	if e, ok := owner.Backpop(f.Name); ok {
		return e, nil
	}

	self := owner.TableModel()
	if self == nil {
		return BackpopEdge{}, fmt.Errorf("%w: adhoc model %s cannot declare backpop %s", ErrModelDefinition, owner.Name, f.Name)
	}

	var candidates []*FieldSpec
	for _, fwd := range f.Target.ForwardFields() {
		if fwd.Target == self {
			candidates = append(candidates, fwd)
		}
	}

	match, err := chooseBackpopCandidate(owner, f, candidates)
	if err != nil {
		return BackpopEdge{}, err
	}

	edge := BackpopEdge{
		Owner:        owner,
		Field:        f.Name,
		Target:       f.Target,
		ForwardField: match.Name,
	}
	owner.setBackpop(edge)
	r.logger.Debug("resolved backpop",
		zap.String("model", owner.Name),
		zap.String("field", f.Name),
		zap.String("target", f.Target.Name),
		zap.String("forward_field", match.Name))
	return edge, nil
}

func chooseBackpopCandidate(owner *ModelMeta, f *FieldSpec, candidates []*FieldSpec) (*FieldSpec, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	ambiguous := &AmbiguousBackpopError{
		Model:      owner.Name,
		Field:      f.Name,
		Target:     f.Target.Name,
		Candidates: names,
	}

	switch len(candidates) {
	case 0:
		return nil, ambiguous
	case 1:
		return candidates[0], nil
	}

	stem := stripCollectionSuffix(f.Name)
	var matched []*FieldSpec
	for _, c := range candidates {
		if strings.HasPrefix(c.Name, stem) {
			matched = append(matched, c)
		}
	}
	if len(matched) != 1 {
		return nil, ambiguous
	}
	return matched[0], nil
}

func stripCollectionSuffix(name string) string {
	for _, suffix := range collectionSuffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

// ResolveAll resolves every backpop field of every registered table model
func (r *Registry) ResolveAll() error {
	var errs []error
	for _, m := range r.TableModels() {
		for _, f := range m.BackpopFields() {
			if _, err := r.ResolveBackpop(m, f.Name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RelationshipGraph is the directed foreign-key graph between table models
type RelationshipGraph struct {
	nodes map[string]*ModelMeta
	edges map[string][]string // table -> referenced tables
}

// NewRelationshipGraph builds the graph from the forward edges of the
// given table models. Self references are not edges.
func NewRelationshipGraph(models []*ModelMeta) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: make(map[string]*ModelMeta),
		edges: make(map[string][]string),
	}
	for _, m := range models {
		if m.Kind == KindTable {
			graph.nodes[m.TableName] = m
		}
	}
	for name, m := range graph.nodes {
		seen := make(map[string]bool)
		for _, f := range m.ForwardFields() {
			target := f.Target.TableName
			if target == name || seen[target] {
				continue
			}
			seen[target] = true
			graph.edges[name] = append(graph.edges[name], target)
		}
		sort.Strings(graph.edges[name])
	}
	return graph
}

// Graph returns the relationship graph of every registered table model
func (r *Registry) Graph() *RelationshipGraph {
	return NewRelationshipGraph(r.TableModels())
}

func (g *RelationshipGraph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectCycles returns the foreign-key cycles between distinct tables
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range g.edges[node] {
			if _, known := g.nodes[next]; !known {
				continue
			}
			if onStack[next] {
				for i, n := range path {
					if n == next {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				continue
			}
			if !visited[next] {
				dfs(next, path)
			}
		}
		onStack[node] = false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			dfs(node, nil)
		}
	}
	return cycles
}

// TopologicalSort returns table names with referenced tables first.
// Tables on a cycle are appended in name order after the acyclic ones,
// since SQLite accepts forward references in REFERENCES clauses.
func (g *RelationshipGraph) TopologicalSort() []string {
	outDegree := make(map[string]int, len(g.nodes))
	reverse := make(map[string][]string)
	for _, node := range g.sortedNodes() {
		for _, target := range g.edges[node] {
			if _, known := g.nodes[target]; !known {
				continue
			}
			outDegree[node]++
			reverse[target] = append(reverse[target], node)
		}
	}

	var queue []string
	for _, node := range g.sortedNodes() {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	placed := make(map[string]bool, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)
		placed[node] = true

		for _, dependent := range reverse[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	for _, node := range g.sortedNodes() {
		if !placed[node] {
			result = append(result, node)
		}
	}
	return result
}

// Dependencies returns the tables directly referenced by table
func (g *RelationshipGraph) Dependencies(table string) []string {
	return g.edges[table]
}

// FormatCycles renders cycles as "A -> B -> A" lines
func FormatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  Cycle %d: %s -> %s", i+1, strings.Join(cycle, " -> "), cycle[0])
	}
	return b.String()
}
