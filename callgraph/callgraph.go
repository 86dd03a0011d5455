// Package callgraph implements the third and final pass: it re-walks every
// module's AST once more, now that the transitive closure and argument
// bindings are stable, to resolve every call expression to a concrete set
// of callee namespaces and record the resulting edges and per-node
// metadata. Grounded on
// original_source/pycg/processing/cgprocessor.py and
// original_source/pycg/machinery/callgraph.py.
package callgraph

// Edge is one outgoing call-site reference from a caller namespace.
type Edge struct {
	Dst    string
	Line   int
	Mod    string
	ExtMod string
}

// NodeMeta is the per-namespace metadata recorded the first time a callable
// or module is visited: its declaring module and line, its formal
// parameter shape, and simple per-body counters.
type NodeMeta struct {
	Module    string
	Line      int
	ArgCount  int
	ArgNames  []string
	ArgTypes  []string
	IfCount   int
	ExprCount int
	Raises    map[string]struct{}
}

// EntryPoint is one function discovered via the generalized
// HostModule.EntrypointFunc(_, fn) registration idiom.
type EntryPoint struct {
	Name   string
	Module string
}

// Error reports an invalid call-graph mutation (empty node name).
type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

// CallGraph is the call/reference graph plus its extended per-node and
// per-edge metadata, populated by Emitter and consumed by internal/emit.
type CallGraph struct {
	cg       map[string]map[string]struct{}
	extended map[string][]Edge
	meta     map[string]*NodeMeta
	modNames map[string]string

	Entrypoints []EntryPoint
}

// New returns an empty CallGraph.
func New() *CallGraph {
	return &CallGraph{
		cg:       map[string]map[string]struct{}{},
		extended: map[string][]Edge{},
		meta:     map[string]*NodeMeta{},
		modNames: map[string]string{},
	}
}

// AddNode idempotently registers name as a graph node, recording modname
// the first time it is seen (or the first time a non-empty modname is
// supplied for a node previously added with none).
func (g *CallGraph) AddNode(name, modname string) error {
	if name == "" {
		return &Error{Msg: "empty node name"}
	}
	if _, ok := g.cg[name]; !ok {
		g.cg[name] = map[string]struct{}{}
		g.extended[name] = nil
		g.modNames[name] = modname
		return nil
	}
	if g.modNames[name] == "" && modname != "" {
		g.modNames[name] = modname
	}
	return nil
}

// AddEdge records src -> dst, creating both nodes if necessary, and
// appends the extended per-edge metadata under src.
func (g *CallGraph) AddEdge(src, dst string, line int, mod, extMod string) error {
	if err := g.AddNode(src, mod); err != nil {
		return err
	}
	if err := g.AddNode(dst, ""); err != nil {
		return err
	}
	g.cg[src][dst] = struct{}{}
	g.extended[src] = append(g.extended[src], Edge{Dst: dst, Line: line, Mod: mod, ExtMod: extMod})
	return nil
}

// Get returns the plain caller -> callee-set graph.
func (g *CallGraph) Get() map[string]map[string]struct{} { return g.cg }

// Extended returns the per-caller slice of annotated edges.
func (g *CallGraph) Extended() map[string][]Edge { return g.extended }

// ModuleOf returns the declaring module recorded for name.
func (g *CallGraph) ModuleOf(name string) string { return g.modNames[name] }

// Meta returns the NodeMeta recorded for name, creating an empty one on
// first access so callers can fill it in incrementally.
func (g *CallGraph) Meta(name string) *NodeMeta {
	m, ok := g.meta[name]
	if !ok {
		m = &NodeMeta{Raises: map[string]struct{}{}}
		g.meta[name] = m
	}
	return m
}

// MetaIfPresent returns the NodeMeta recorded for name without creating one.
func (g *CallGraph) MetaIfPresent(name string) (*NodeMeta, bool) {
	m, ok := g.meta[name]
	return m, ok
}

// AddEntrypoint records an entry-point function discovered by the emitter.
func (g *CallGraph) AddEntrypoint(name, module string) {
	g.Entrypoints = append(g.Entrypoints, EntryPoint{Name: name, Module: module})
}

// Edges flattens the graph into [src, dst] pairs, for the default output
// schema / the FASTEN graph array.
func (g *CallGraph) Edges() [][2]string {
	var out [][2]string
	for src, dsts := range g.cg {
		for dst := range dsts {
			out = append(out, [2]string{src, dst})
		}
	}
	return out
}

// Nodes returns every node name currently in the graph.
func (g *CallGraph) Nodes() []string {
	out := make([]string, 0, len(g.cg))
	for name := range g.cg {
		out = append(out, name)
	}
	return out
}
