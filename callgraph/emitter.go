package callgraph

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viant/callgraph/definition"
	astpkg "github.com/viant/callgraph/internal/ast"
	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/pass1"
)

// value mirrors pass2's decodeNode result: either a resolved Definition or
// a literal. Duplicated here rather than shared, matching the original
// source's own split between postprocessor.py and cgprocessor.py, both of
// which reimplement the same resolution primitives from processing/base.py.
type value struct {
	def     *definition.Definition
	literal string
	isDef   bool
}

// Emitter re-walks one module's AST a third time, now that the transitive
// closure and argument bindings are stable, resolving every call
// expression to concrete callee namespaces and recording the call graph
// plus per-node metadata. Grounded on
// original_source/pycg/processing/cgprocessor.py.
type Emitter struct {
	astpkg.BaseVisitor

	store    *pass1.Store
	closured map[string]map[string]struct{}
	graph    *CallGraph

	moduleNS string
	src      []byte

	nsStack     []string
	methodStack []string
	classStk    []string
	funcDepth   int

	lastCalledNames map[string]struct{}
}

// Run emits the call graph for every internal module known to store, after
// pass2.Run has completed; it recomputes the transitive closure itself.
func Run(ctx context.Context, store *pass1.Store) (*CallGraph, error) {
	closured := store.Defs.TransitiveClosure()
	graph := New()
	for modNS, mod := range store.Modules.Internal {
		if err := emitModule(ctx, store, closured, graph, modNS, mod.Filename); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

func emitModule(ctx context.Context, store *pass1.Store, closured map[string]map[string]struct{}, graph *CallGraph, moduleNS, absPath string) error {
	store.Scopes.ResetAllCounters()

	src := store.ReadFile(ctx, absPath)
	tree, err := astpkg.Parse(ctx, src)
	if err != nil {
		log.Warn().Err(err).Str("module", moduleNS).Msg("callgraph: parse failed, skipping")
		return nil
	}
	if tree.HasError() {
		log.Warn().Str("module", moduleNS).Msg("callgraph: syntax error, skipping module")
		return nil
	}

	_ = graph.AddNode(moduleNS, moduleNS)

	e := &Emitter{
		store:       store,
		closured:    closured,
		graph:       graph,
		moduleNS:    moduleNS,
		src:         src,
		nsStack:     []string{moduleNS},
		methodStack: []string{moduleNS},
	}
	astpkg.Walk(tree.Root, e)
	return nil
}

func (e *Emitter) currentNS() string     { return e.nsStack[len(e.nsStack)-1] }
func (e *Emitter) currentMethod() string { return e.methodStack[len(e.methodStack)-1] }
func (e *Emitter) text(n *astpkg.Node) string { return astpkg.Text(n, e.src) }

func (e *Emitter) closureOf(fullns string) map[string]struct{} {
	if set, ok := e.closured[fullns]; ok {
		return set
	}
	return nil
}

// FunctionDef emits edges for the decorator chain, registers the function
// as a graph node with its declared-signature metadata (the receiver is
// kept in argNames here, unlike pass1's bound-and-dropped formal list,
// since this pass reports the literal declared signature), and descends
// with both namespace stacks pushed.
func (e *Emitter) FunctionDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	name := e.text(nameNode)
	fnNS := ns.Join(e.currentNS(), name)

	e.emitDecoratorEdges(n)

	_ = e.graph.AddNode(fnNS, e.moduleNS)
	argNames := e.declaredArgNames(n)
	meta := e.graph.Meta(fnNS)
	meta.Module = e.moduleNS
	meta.Line = astpkg.Line(n)
	meta.ArgNames = argNames
	meta.ArgCount = len(argNames)
	meta.ArgTypes = naTypes(len(argNames))

	e.nsStack = append(e.nsStack, fnNS)
	e.methodStack = append(e.methodStack, fnNS)
	e.funcDepth++
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, e)
	}
	e.funcDepth--
	e.methodStack = e.methodStack[:len(e.methodStack)-1]
	e.nsStack = e.nsStack[:len(e.nsStack)-1]
	return false
}

func naTypes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "N/A"
	}
	return out
}

func (e *Emitter) declaredArgNames(fnNode *astpkg.Node) []string {
	var names []string
	paramsNode := fnNode.ChildByFieldName("parameters")
	if paramsNode == nil {
		return names
	}
	for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
		param := paramsNode.NamedChild(i)
		switch param.Type() {
		case "identifier":
			names = append(names, e.text(param))
		case "default_parameter", "typed_default_parameter":
			if nameNode := param.ChildByFieldName("name"); nameNode != nil {
				names = append(names, e.text(nameNode))
			}
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if param.NamedChildCount() > 0 {
				names = append(names, e.text(param.NamedChild(0)))
			}
		}
	}
	return names
}

func (e *Emitter) emitDecoratorEdges(fnNode *astpkg.Node) {
	parent := fnNode.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return
	}
	line := astpkg.Line(fnNode)
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		ch := parent.NamedChild(i)
		if ch.Type() != "decorator" || ch.NamedChildCount() == 0 {
			continue
		}
		decorated := ch.NamedChild(0)
		for _, d := range e.decodeNode(decorated) {
			if !d.isDef {
				continue
			}
			for name := range e.closureOf(d.def.FullNS) {
				_ = e.graph.AddEdge(e.currentMethod(), name, line, e.moduleNS, "")
			}
		}
	}
}

// ClassDef descends with the namespace (but not the method) stack pushed,
// matching the original's distinct name_stack/method_stack discipline: a
// bare call directly in a class body (outside any method) still attributes
// to the enclosing function or module, never to the class itself.
func (e *Emitter) ClassDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	clsNS := ns.Join(e.currentNS(), e.text(nameNode))
	e.nsStack = append(e.nsStack, clsNS)
	e.classStk = append(e.classStk, clsNS)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, e)
	}
	e.classStk = e.classStk[:len(e.classStk)-1]
	e.nsStack = e.nsStack[:len(e.nsStack)-1]
	return false
}

// Lambda registers a graph node for an anonymous function using the same
// synthetic-name counter preprocess/postprocess consumed, and descends
// with the method stack pushed so calls in its body attribute correctly.
func (e *Emitter) Lambda(n *astpkg.Node) bool {
	sc := e.store.Scopes.GetScope(e.currentNS())
	if sc == nil {
		return true
	}
	lambdaName := sc.NextLambdaName()
	lambdaNS := ns.Join(e.currentNS(), lambdaName)
	_ = e.graph.AddNode(lambdaNS, e.moduleNS)
	meta := e.graph.Meta(lambdaNS)
	meta.Module = e.moduleNS
	meta.Line = astpkg.Line(n)

	e.nsStack = append(e.nsStack, lambdaNS)
	e.methodStack = append(e.methodStack, lambdaNS)
	e.funcDepth++
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, e)
	}
	e.funcDepth--
	e.methodStack = e.methodStack[:len(e.methodStack)-1]
	e.nsStack = e.nsStack[:len(e.nsStack)-1]
	return false
}

// Conditional and ExprStatement increment the enclosing function's simple
// per-body counters; top-level statements (outside any function) are not
// counted, matching the original's current_node_name guard.
func (e *Emitter) Conditional(n *astpkg.Node) bool {
	if e.funcDepth > 0 {
		e.graph.Meta(e.currentMethod()).IfCount++
	}
	return true
}

func (e *Emitter) ExprStatement(n *astpkg.Node) bool {
	if e.funcDepth > 0 {
		e.graph.Meta(e.currentMethod()).ExprCount++
	}
	return true
}

// Call resolves the callee names, detects the generalized entrypoint
// registration idiom, and emits an edge per resolved callable/class
// target; unresolved attribute-chain calls fall back to a best-effort
// external edge synthesized from the chain's literal source text.
func (e *Emitter) Call(n *astpkg.Node) bool {
	line := astpkg.Line(n)
	names := e.retrieveCallNames(n)
	e.detectEntrypoint(n, names)

	if len(names) == 0 {
		e.emitFailSafeExternal(n, line)
		return true
	}

	e.lastCalledNames = names
	for name := range names {
		pointer := name
		if sc := e.store.Scopes.GetScope(ns.Join(name, ns.InitMethod)); sc != nil {
			pointer = ns.Join(name, ns.InitMethod)
		}
		defi := e.store.Defs.Get(pointer)
		if defi == nil {
			continue
		}
		if defi.IsCallable() {
			extMod := ""
			if defi.IsExtDef() {
				extMod = ns.Root(pointer)
			}
			_ = e.graph.AddEdge(e.currentMethod(), pointer, line, e.moduleNS, extMod)
		}
		if defi.IsClassDef() {
			for initNS := range e.findClsFunNS(pointer, ns.InitMethod) {
				_ = e.graph.AddEdge(e.currentMethod(), initNS, line, e.moduleNS, "")
			}
		}
	}
	return true
}

func (e *Emitter) emitFailSafeExternal(n *astpkg.Node, line int) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return
	}
	raw := e.text(fn)
	if raw == "" || strings.HasPrefix(raw, "self.") {
		return
	}
	extMod := ns.Root(raw)
	e.store.Modules.CreateExternal(extMod)
	_ = e.graph.AddEdge(e.currentMethod(), raw, line, e.moduleNS, extMod)
}

func (e *Emitter) detectEntrypoint(n *astpkg.Node, names map[string]struct{}) {
	host := e.store.Config.HostModule
	entry := e.store.Config.EntrypointFunc
	if host == "" || entry == "" {
		return
	}
	target := ns.Join(host, entry)
	for name := range names {
		if !strings.Contains(name, target) {
			continue
		}
		argsNode := n.ChildByFieldName("arguments")
		if argsNode == nil || argsNode.NamedChildCount() < 2 {
			continue
		}
		second := argsNode.NamedChild(1)
		if second.Type() == "identifier" {
			e.graph.AddEntrypoint(e.text(second), e.moduleNS)
		}
	}
}

// ForLoop emits edges to the iterable's __iter__/__next__ methods when
// they are registered definitions, mirroring the original's belt-and-
// braces edge creation (both methods get an edge when present, whichever
// the target's class actually implements).
func (e *Emitter) ForLoop(n *astpkg.Node) bool {
	right := n.ChildByFieldName("right")
	if right == nil {
		return true
	}
	line := astpkg.Line(n)
	for _, item := range e.decodeNode(right) {
		if !item.isDef {
			continue
		}
		for name := range e.closureOf(item.def.FullNS) {
			iterNS := ns.Join(name, ns.IterMethod)
			nextNS := ns.Join(name, ns.NextMethod)
			if e.store.Defs.Get(iterNS) != nil {
				_ = e.graph.AddEdge(e.currentMethod(), iterNS, line, e.moduleNS, "")
			}
			if e.store.Defs.Get(nextNS) != nil {
				_ = e.graph.AddEdge(e.currentMethod(), nextNS, line, e.moduleNS, "")
			}
		}
	}
	return true
}

// Raise resolves the merged historical behavior for the original source's
// duplicate, shadowing visit_Raise definitions: record the raised name on
// the enclosing function's metadata and emit an edge to its resolved
// __init__ (class) or external definition.
func (e *Emitter) Raise(n *astpkg.Node) bool {
	if n.NamedChildCount() == 0 {
		return true
	}
	exc := n.NamedChild(0)
	line := astpkg.Line(n)

	var raisedName string
	switch exc.Type() {
	case "identifier":
		raisedName = e.text(exc)
	case "call":
		if fn := exc.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
			raisedName = e.text(fn)
		}
	}
	if raisedName != "" {
		e.graph.Meta(e.currentMethod()).Raises[raisedName] = struct{}{}
	}

	for _, d := range e.decodeNode(exc) {
		if !d.isDef {
			continue
		}
		for name := range e.closureOf(d.def.FullNS) {
			defi := e.store.Defs.Get(name)
			if defi == nil {
				continue
			}
			if defi.IsClassDef() {
				for initNS := range e.findClsFunNS(name, ns.InitMethod) {
					_ = e.graph.AddEdge(e.currentMethod(), initNS, line, e.moduleNS, "")
				}
			}
			if defi.IsExtDef() {
				_ = e.graph.AddEdge(e.currentMethod(), name, line, e.moduleNS, ns.Root(name))
			}
		}
	}
	return true
}

// retrieveCallNames, retrieveParentNames, retrieveAttributeNames,
// findClsFunNS, retrieveSubscriptNames and decodeNode re-implement pass2's
// resolution primitives for this pass's own namespace/method stacks. The
// duplication mirrors the original source, where cgprocessor.py and
// postprocessor.py each inherit the identical methods from a shared
// ProcessingBase rather than one calling the other.

func (e *Emitter) retrieveCallNames(n *astpkg.Node) map[string]struct{} {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	switch fn.Type() {
	case "identifier":
		d := e.store.Scopes.GetDef(e.currentNS(), e.text(fn))
		if d == nil {
			return nil
		}
		// A direct call naming a decorated function's own declared name
		// resolves through the decorator chain's return value instead of
		// the function itself -- its effective identity for callers. This
		// is checked on d (the name as written at the call site) rather
		// than after closure expansion, so a call reaching the same
		// function indirectly (e.g. through a decorator's own bound
		// parameter) still resolves straight to it instead of bouncing
		// back into the decorator chain.
		if len(d.DecoratorNames) > 0 {
			out := map[string]struct{}{}
			for decName := range d.DecoratorNames {
				for target := range e.closureOf(decName) {
					out[target] = struct{}{}
				}
			}
			return out
		}
		return e.closureOf(d.FullNS)
	case "call":
		// The walk dispatches this call before its inner call, so the
		// inner callee is resolved here rather than read from
		// lastCalledNames.
		inner := e.retrieveCallNames(fn)
		if len(inner) == 0 {
			return nil
		}
		out := map[string]struct{}{}
		for name := range inner {
			for ret := range e.closureOf(ns.Join(name, ns.ReturnName)) {
				if retDef := e.store.Defs.Get(ret); retDef != nil {
					out[retDef.FullNS] = struct{}{}
				}
			}
		}
		return out
	case "attribute":
		return e.retrieveAttributeNames(fn)
	case "subscript":
		full := e.retrieveSubscriptNames(fn)
		out := map[string]struct{}{}
		for name := range full {
			for c := range e.closureOf(name) {
				out[c] = struct{}{}
			}
		}
		return out
	}
	return nil
}

func (e *Emitter) retrieveParentNames(attrNode *astpkg.Node) map[string]struct{} {
	obj := attrNode.ChildByFieldName("object")
	if obj == nil {
		return nil
	}
	out := map[string]struct{}{}
	for _, v := range e.decodeNode(obj) {
		if !v.isDef {
			continue
		}
		if closure := e.closureOf(v.def.FullNS); len(closure) > 0 {
			for c := range closure {
				out[c] = struct{}{}
			}
		} else {
			out[v.def.FullNS] = struct{}{}
		}
	}
	return out
}

func (e *Emitter) retrieveAttributeNames(attrNode *astpkg.Node) map[string]struct{} {
	attrField := attrNode.ChildByFieldName("attribute")
	if attrField == nil {
		return nil
	}
	attr := e.text(attrField)
	out := map[string]struct{}{}
	for parentName := range e.retrieveParentNames(attrNode) {
		for name := range e.closureOf(parentName) {
			defi := e.store.Defs.Get(name)
			if defi == nil {
				continue
			}
			if defi.IsClassDef() {
				for clsName := range e.findClsFunNS(defi.FullNS, attr) {
					out[clsName] = struct{}{}
				}
			}
			if defi.IsFunctionDef() || defi.IsModuleDef() {
				out[ns.Join(name, attr)] = struct{}{}
			}
			if defi.IsExtDef() {
				if strings.Contains(name, attr) {
					continue
				}
				extName := ns.Join(name, attr)
				if e.store.Defs.Get(extName) == nil {
					_, _ = e.store.Defs.Create(extName, ns.ExtDef)
				}
				out[extName] = struct{}{}
			}
		}
	}
	return out
}

func (e *Emitter) findClsFunNS(clsName, fn string) map[string]struct{} {
	node := e.store.Classes.Get(clsName)
	if node == nil {
		return nil
	}
	var extNames []string
	for _, item := range node.MRO {
		fullNS := ns.Join(item, fn)
		names := map[string]struct{}{}
		if closure := e.closureOf(fullNS); len(closure) > 0 {
			for c := range closure {
				names[c] = struct{}{}
			}
		} else {
			names[fullNS] = struct{}{}
		}
		if e.store.Defs.Get(fullNS) != nil {
			return names
		}
		if parent := e.store.Defs.Get(item); parent != nil && parent.IsExtDef() {
			extNames = append(extNames, fullNS)
		}
	}
	result := map[string]struct{}{}
	for _, name := range extNames {
		if e.store.Defs.Get(name) == nil {
			_, _ = e.store.Defs.Create(name, ns.ExtDef)
		}
		result[name] = struct{}{}
	}
	return result
}

func (e *Emitter) retrieveSubscriptNames(n *astpkg.Node) map[string]struct{} {
	valueNode := n.ChildByFieldName("value")
	subNode := n.ChildByFieldName("subscript")
	if valueNode == nil || subNode == nil {
		return nil
	}
	decodedVals := map[string]struct{}{}
	for _, v := range e.decodeNode(valueNode) {
		if v.isDef {
			for c := range e.closureOf(v.def.FullNS) {
				decodedVals[c] = struct{}{}
			}
		}
	}
	keys := map[string]struct{}{}
	for _, s := range e.decodeNode(subNode) {
		if s.isDef {
			for c := range e.closureOf(s.def.FullNS) {
				defi := e.store.Defs.Get(c)
				if defi == nil {
					continue
				}
				for lit := range defi.LiteralPointer.Values() {
					keys[lit] = struct{}{}
				}
			}
			continue
		}
		keys[s.literal] = struct{}{}
	}
	full := map[string]struct{}{}
	for d := range decodedVals {
		for key := range keys {
			full[ns.Join(d, strings.Trim(key, "'\""))] = struct{}{}
		}
	}
	return full
}

func (e *Emitter) decodeNode(n *astpkg.Node) []value {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		if d := e.store.Scopes.GetDef(e.currentNS(), e.text(n)); d != nil {
			return []value{{def: d, isDef: true}}
		}
		return nil
	case "call":
		var out []value
		for name := range e.retrieveCallNames(n) {
			if d := e.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	case "attribute":
		var out []value
		for name := range e.retrieveAttributeNames(n) {
			if d := e.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	case "subscript":
		var out []value
		for name := range e.retrieveSubscriptNames(n) {
			if d := e.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	case "string":
		return []value{{literal: strings.Trim(e.text(n), "'\""), isDef: false}}
	case "integer", "float":
		return []value{{literal: e.text(n), isDef: false}}
	case "tuple":
		var out []value
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, e.decodeNode(n.NamedChild(i))...)
		}
		return out
	default:
		return nil
	}
}
