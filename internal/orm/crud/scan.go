package crud

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/tuplesaver/tuplesaver/internal/orm/query"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

var int64Type = reflect.TypeFor[int64]()

// Deferred is a forward reference that was not joined into the row it
// belongs to. Into points at the storage to fill by fetching the row with
// ID from Meta's table: an allocated row for pointer fields, the field
// itself for value fields. Copies are further value fields that hold the
// same row; each gets *Into once it is filled.
type Deferred struct {
	Meta   *schema.ModelMeta
	ID     int64
	Into   reflect.Value
	Copies []reflect.Value
}

// rowKey identifies a stored row
type rowKey struct {
	meta *schema.ModelMeta
	id   int64
}

// loadState is shared by the rows of one load call. It keeps the deferred
// fetches still to run and the rows already allocated for them, so a
// reference cycle is fetched once.
type loadState struct {
	memo  map[rowKey]reflect.Value
	queue []Deferred

	// value fields holding a row that was already seen are copied once
	// every fetch is done
	copies []pendingCopy
}

type pendingCopy struct {
	dst reflect.Value
	src reflect.Value // pointer to the row
}

func newLoadState() *loadState {
	return &loadState{memo: make(map[rowKey]reflect.Value)}
}

// reference points the forward field fv at the row (meta, id), queueing a
// fetch the first time the row is seen
func (st *loadState) reference(meta *schema.ModelMeta, id int64, fv reflect.Value) {
	key := rowKey{meta: meta, id: id}
	if ptr, ok := st.memo[key]; ok {
		if fv.Kind() == reflect.Pointer {
			fv.Set(ptr)
		} else {
			st.copies = append(st.copies, pendingCopy{dst: fv, src: ptr})
		}
		return
	}

	var into reflect.Value
	if fv.Kind() == reflect.Pointer {
		into = reflect.New(meta.GoType)
		fv.Set(into)
	} else {
		into = fv.Addr()
	}
	st.memo[key] = into
	st.queue = append(st.queue, Deferred{Meta: meta, ID: id, Into: into})
}

// applyCopies sets the pending value copies. A row held by value is
// strictly smaller than any row holding it, so copying smaller rows first
// completes every row before it is copied.
func (st *loadState) applyCopies() {
	sort.SliceStable(st.copies, func(i, j int) bool {
		return st.copies[i].dst.Type().Size() < st.copies[j].dst.Type().Size()
	})
	for _, c := range st.copies {
		c.dst.Set(c.src.Elem())
	}
	st.copies = nil
}

var layouts sync.Map // *schema.ModelMeta -> *query.Layout

// layoutFor returns the load layout of meta: joined forward references
// for table and alt models, none for adhoc models
func layoutFor(meta *schema.ModelMeta) (*query.Layout, error) {
	if l, ok := layouts.Load(meta); ok {
		return l.(*query.Layout), nil
	}
	var plan *query.JoinPlan
	if meta.HasTable() {
		plan = query.NewJoinPlan(meta)
	}
	l, err := query.BuildLayout(meta, plan)
	if err != nil {
		return nil, err
	}
	actual, _ := layouts.LoadOrStore(meta, l)
	return actual.(*query.Layout), nil
}

// Load builds a row of meta from a flat tuple of column values laid out the
// way Find selects them. Forward references that were not joined come
// back as deferred fetches; the row's fields already point at the storage
// they will fill. Value fields repeating a deferred row are listed in its
// Copies.
func (o *Operations) Load(meta *schema.ModelMeta, values []any) (any, []Deferred, error) {
	layout, err := layoutFor(meta)
	if err != nil {
		return nil, nil, err
	}
	st := newLoadState()
	dst := reflect.New(meta.GoType)
	if err := o.load(layout, values, st, dst); err != nil {
		return nil, nil, err
	}

	// copies of deferred rows wait for the caller; the rest are complete
	type slot struct {
		addr uintptr
		typ  reflect.Type
	}
	pending := make(map[slot]int, len(st.queue))
	for i, d := range st.queue {
		pending[slot{d.Into.Pointer(), d.Into.Type()}] = i
	}
	rest := st.copies[:0]
	for _, c := range st.copies {
		if i, ok := pending[slot{c.src.Pointer(), c.src.Type()}]; ok {
			st.queue[i].Copies = append(st.queue[i].Copies, c.dst)
			continue
		}
		rest = append(rest, c)
	}
	st.copies = rest
	st.applyCopies()
	return dst.Interface(), st.queue, nil
}

// loadNode is one record of a row being loaded
type loadNode struct {
	layout *query.Layout
	ptr    reflect.Value // nil when the joined row is absent
	parent int
	field  *schema.FieldSpec
}

// load fills the row dst points at from values. Nodes are decoded in
// layout order; rows held by value are decoded inside their parent and
// rows held by pointer are linked once every node is decoded.
func (o *Operations) load(layout *query.Layout, values []any, st *loadState, dst reflect.Value) error {
	if len(values) != layout.Width() {
		return fmt.Errorf("load %s: got %d values, layout has %d columns", layout.Meta.Name, len(values), layout.Width())
	}

	type frame struct {
		layout *query.Layout
		parent int
		field  *schema.FieldSpec
	}
	var (
		nodes  []loadNode
		offset int
		stack  = []frame{{layout: layout, parent: -1}}
	)
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cols := values[offset : offset+len(fr.layout.Columns)]
		offset += len(fr.layout.Columns)

		node := loadNode{layout: fr.layout, parent: fr.parent, field: fr.field}
		present := fr.parent < 0 || (cols[0] != nil && nodes[fr.parent].ptr.IsValid())
		if present {
			switch {
			case fr.parent < 0:
				node.ptr = dst
			case fr.field.Type.Kind() == reflect.Pointer:
				node.ptr = reflect.New(fr.layout.Meta.GoType)
			default:
				// decoded in place so references deferred below it land
				// in the parent
				node.ptr = nodes[fr.parent].ptr.Elem().FieldByIndex(fr.field.Index).Addr()
			}
			if err := o.decodeColumns(fr.layout, cols, st, node.ptr); err != nil {
				return err
			}
		}
		nodes = append(nodes, node)

		self := len(nodes) - 1
		for i := len(fr.layout.Children) - 1; i >= 0; i-- {
			c := fr.layout.Children[i]
			stack = append(stack, frame{layout: c.Layout, parent: self, field: c.Field})
		}
	}

	for i := len(nodes) - 1; i > 0; i-- {
		n := nodes[i]
		parent := nodes[n.parent]
		if !n.ptr.IsValid() || !parent.ptr.IsValid() {
			continue
		}
		f := parent.ptr.Elem().FieldByIndex(n.field.Index)
		if f.Kind() == reflect.Pointer {
			f.Set(n.ptr)
		}
	}
	return nil
}

// decodeColumns sets the column fields of one record
func (o *Operations) decodeColumns(layout *query.Layout, cols []any, st *loadState, ptr reflect.Value) error {
	meta := layout.Meta
	row := ptr.Elem()
	for i, f := range layout.Columns {
		raw := cols[i]
		fv := row.FieldByIndex(f.Index)

		if f.Role == schema.RoleForward {
			if _, joined := layout.Child(f); joined || raw == nil {
				continue
			}
			idv, err := o.codecs.Decode(int64Type, raw)
			if err != nil {
				return fmt.Errorf("decode %s.%s: %w", meta.Name, f.Name, err)
			}
			st.reference(f.Target, idv.Int(), fv)
			continue
		}

		v, err := o.codecs.Decode(f.Type, raw)
		if err != nil {
			return fmt.Errorf("decode %s.%s: %w", meta.Name, f.Name, err)
		}
		fv.Set(v)

		// registered before its references so a row pointing at itself
		// is not fetched again
		if f.IsID() && meta.IsTable() && !v.IsNil() {
			key := rowKey{meta: meta, id: v.Elem().Int()}
			if _, seen := st.memo[key]; !seen {
				st.memo[key] = ptr
			}
		}
	}
	return nil
}

// scanValues reads the current row as raw driver values
func scanValues(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	dest := make([]any, width)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}
