// Package moduletable implements the two-map (internal/external) module
// registry: every module under analysis has a record of its filename and
// a Methods map of callable line ranges. Methods is filled only through
// AddMethod; the analysis passes do not call it, so it stays empty after
// a run.
package moduletable

// LineRange is a callable's first/last source line, inclusive.
type LineRange struct {
	First int
	Last  int
}

// Module is one registered module record.
type Module struct {
	Name     string
	Filename string
	Methods  map[string]LineRange
}

func newModule(name, filename string) *Module {
	return &Module{Name: name, Filename: filename, Methods: map[string]LineRange{}}
}

// AddMethod idempotently records the line range of a callable namespace
// declared in this module. A later call for the same namespace is a
// no-op, matching the original source's idempotent add_method.
func (m *Module) AddMethod(fullns string, first, last int) {
	if _, exists := m.Methods[fullns]; exists {
		return
	}
	m.Methods[fullns] = LineRange{First: first, Last: last}
}

// Table owns the internal and external module maps.
type Table struct {
	Internal map[string]*Module
	External map[string]*Module
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{Internal: map[string]*Module{}, External: map[string]*Module{}}
}

// CreateInternal registers (or returns the existing) internal module.
func (t *Table) CreateInternal(name, filename string) *Module {
	if m, ok := t.Internal[name]; ok {
		return m
	}
	m := newModule(name, filename)
	t.Internal[name] = m
	return m
}

// CreateExternal lazily registers (or returns the existing) external
// module. Called by the call-graph emitter the first time an unresolved
// attribute chain's root segment is referenced.
func (t *Table) CreateExternal(name string) *Module {
	if m, ok := t.External[name]; ok {
		return m
	}
	m := newModule(name, "")
	t.External[name] = m
	return m
}

// Get returns the module named name from either map, and whether it is
// internal.
func (t *Table) Get(name string) (m *Module, internal bool, ok bool) {
	if m, ok := t.Internal[name]; ok {
		return m, true, true
	}
	if m, ok := t.External[name]; ok {
		return m, false, true
	}
	return nil, false, false
}
