// Package pass2 implements the postprocess pass: per module, it
// finalizes class MROs, threads decorator chains through the decorators'
// first parameters and records the outermost decorator's return in a
// function's decorator names, resolves call targets against the transitive closure and
// binds call arguments to formal parameters, and routes for-loop targets
// through a `__next__` return value. Grounded on
// original_source/pycg/processing/postprocessor.py and processing/base.py.
package pass2

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viant/callgraph/classtable"
	"github.com/viant/callgraph/definition"
	astpkg "github.com/viant/callgraph/internal/ast"
	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/pass1"
)

// value is what decodeNode returns for one AST subexpression: either a
// resolved Definition, or a literal (string/int/unknown tag).
type value struct {
	def     *definition.Definition
	literal string
	isDef   bool
}

// Postprocessor re-walks one module's AST with the transitive closure
// already computed, resolving call targets, finalizing MROs, and binding
// arguments. One Postprocessor is created per module by Run, sharing state through the *pass1.Store built during
// preprocess.
type Postprocessor struct {
	astpkg.BaseVisitor

	store    *pass1.Store
	closured map[string]map[string]struct{}

	moduleNS string
	src      []byte
	nsStack  []string
	classStk []string

	lastCalledNames map[string]struct{}

	// Entrypoints collects functions discovered via the generalized
	// HostModule.EntrypointFunc(_, fn) registration idiom.
	Entrypoints []string
}

// Run postprocesses every internal module known to store, in whatever
// order its Internal map iterates, computing the transitive closure once
// up front and reusing it across every module (re-running it between
// modules would be wasted work since preprocess has already finished).
func Run(ctx context.Context, store *pass1.Store) (*Postprocessor, error) {
	closured := store.Defs.TransitiveClosure()
	var last *Postprocessor
	for modNS, mod := range store.Modules.Internal {
		p, err := postprocessModule(ctx, store, closured, modNS, mod.Filename)
		if err != nil {
			return nil, err
		}
		if last == nil {
			last = p
		} else {
			last.Entrypoints = append(last.Entrypoints, p.Entrypoints...)
		}
	}
	store.Defs.CompleteDefinitions()
	// Re-run the closure after argument propagation. The module walks
	// above run once: they are not repeated against the new closure, so
	// bindings that only a later walk would add are not made.
	if last != nil {
		last.closured = store.Defs.TransitiveClosure()
	}
	return last, nil
}

func postprocessModule(ctx context.Context, store *pass1.Store, closured map[string]map[string]struct{}, moduleNS, absPath string) (*Postprocessor, error) {
	store.Scopes.ResetAllCounters()

	src := store.ReadFile(ctx, absPath)
	tree, err := astpkg.Parse(ctx, src)
	if err != nil {
		log.Warn().Err(err).Str("module", moduleNS).Msg("pass2: parse failed, skipping")
		return &Postprocessor{store: store, closured: closured, moduleNS: moduleNS}, nil
	}
	if tree.HasError() {
		log.Warn().Str("module", moduleNS).Msg("pass2: syntax error, skipping module")
		return &Postprocessor{store: store, closured: closured, moduleNS: moduleNS}, nil
	}

	p := &Postprocessor{
		store:    store,
		closured: closured,
		moduleNS: moduleNS,
		src:      src,
		nsStack:  []string{moduleNS},
	}
	astpkg.Walk(tree.Root, p)
	return p, nil
}

func (p *Postprocessor) currentNS() string   { return p.nsStack[len(p.nsStack)-1] }
func (p *Postprocessor) text(n *astpkg.Node) string { return astpkg.Text(n, p.src) }

func (p *Postprocessor) inClass() (string, bool) {
	if len(p.classStk) == 0 {
		return "", false
	}
	return p.classStk[len(p.classStk)-1], true
}

// closureOf returns the transitive closure set of fullns, or an empty set.
func (p *Postprocessor) closureOf(fullns string) map[string]struct{} {
	if set, ok := p.closured[fullns]; ok {
		return set
	}
	return nil
}

// FunctionDef threads the reversed decorator chain -- each decorator's
// first positional argument receives the previous stage's closured
// return names, starting from the function itself -- then descends
// into the body under the existing scope (created during preprocess).
func (p *Postprocessor) FunctionDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	name := p.text(nameNode)
	fnNS := ns.Join(p.currentNS(), name)
	fnDef := p.store.Defs.Get(fnNS)

	if fnDef != nil {
		p.threadDecorators(n, fnDef)
	}

	p.nsStack = append(p.nsStack, fnNS)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, p)
	}
	p.nsStack = p.nsStack[:len(p.nsStack)-1]
	return false
}

func (p *Postprocessor) threadDecorators(fnNode *astpkg.Node, fnDef *definition.Definition) {
	parent := fnNode.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return
	}
	var decorators []*astpkg.Node
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		ch := parent.NamedChild(i)
		if ch.Type() == "decorator" {
			decorators = append(decorators, ch)
		}
	}
	if len(decorators) == 0 {
		return
	}

	// The first-listed (outermost, applied last) decorator's return value
	// becomes the function's effective identity for callers. This is
	// recorded in decorator_names rather than merged into fnDef's own name
	// pointer: the pointer is also what the argument-threading loop below
	// binds as "the real fnDef" into the decorator's own parameter, and
	// merging would make that binding chase back through the decorator
	// chain it is meant to terminate at (callgraph's emitter resolves
	// decorator_names only at the call site, not through TransitiveClosure).
	outermost := decorators[0]
	if outerDef := p.decoratorCallee(outermost); outerDef != nil {
		returnNS := ns.Join(outerDef.FullNS, ns.ReturnName)
		fnDef.DecoratorNames[returnNS] = struct{}{}
	}

	previousNames := p.closureOf(fnDef.FullNS)
	for i := len(decorators) - 1; i >= 0; i-- {
		d := decorators[i]
		decoratorDef := p.decoratorCallee(d)
		if decoratorDef == nil {
			continue
		}
		newPrevious := map[string]struct{}{}
		for name := range p.closureOf(decoratorDef.FullNS) {
			returnNS := ns.Join(name, ns.ReturnName)
			returnClosure := p.closureOf(returnNS)
			if returnClosure == nil {
				continue
			}
			for r := range returnClosure {
				newPrevious[r] = struct{}{}
			}
			for prevName := range previousNames {
				posArgs := decoratorDef.NamePointer.GetPosArg(0)
				for argName := range posArgs {
					if argDef := p.store.Defs.Get(argName); argDef != nil {
						argDef.NamePointer.Add(prevName)
					}
				}
			}
		}
		previousNames = newPrevious
	}
}

func (p *Postprocessor) decoratorCallee(decoratorNode *astpkg.Node) *definition.Definition {
	if decoratorNode.NamedChildCount() == 0 {
		return nil
	}
	inner := decoratorNode.NamedChild(0)
	name := lastDotted(p.text(inner))
	return p.store.Scopes.GetDef(p.currentNS(), name)
}

func lastDotted(s string) string {
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		return s[idx+1:]
	}
	if idx := strings.Index(s, "("); idx >= 0 {
		return s[:idx]
	}
	return s
}

// ClassDef rebuilds n's MRO from scratch: each declared base is resolved
// against the current scope and the base definition's name pointer, appended as a parent (with the
// parent's own MRO folded in if it has one), and the result is finalized
// via ComputeMRO.
func (p *Postprocessor) ClassDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	name := p.text(nameNode)
	clsNS := ns.Join(p.currentNS(), name)

	node := p.store.Classes.Get(clsNS)
	if node == nil {
		node = p.store.Classes.Create(clsNS, p.moduleNS)
	}
	node.ClearMRO()

	if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
		for i := 0; i < int(superclasses.NamedChildCount()); i++ {
			base := superclasses.NamedChild(i)
			for _, baseName := range p.resolveBaseNames(base) {
				node.AddParent(&classtable.Node{NS: baseName})
				if parentNode := p.store.Classes.Get(baseName); parentNode != nil {
					if joinedEqual(parentNode.MRO, node.MRO) {
						continue
					}
					node.AddParent(parentNode)
				}
			}
		}
	}
	node.ComputeMRO()

	p.nsStack = append(p.nsStack, clsNS)
	p.classStk = append(p.classStk, clsNS)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, p)
	}
	p.classStk = p.classStk[:len(p.classStk)-1]
	p.nsStack = p.nsStack[:len(p.nsStack)-1]
	return false
}

func joinedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p *Postprocessor) resolveBaseNames(base *astpkg.Node) []string {
	if base.Type() != "identifier" {
		return nil
	}
	d := p.store.Scopes.GetDef(p.currentNS(), p.text(base))
	if d == nil {
		return []string{p.text(base)}
	}
	if len(d.NamePointer.Values()) > 0 {
		out := make([]string, 0, len(d.NamePointer.Values()))
		for v := range d.NamePointer.Values() {
			out = append(out, v)
		}
		return out
	}
	return []string{d.FullNS}
}

// Call resolves the callee's closured names, threads class-call
// substitution (self-binding to __init__) and entrypoint detection, and
// binds positional/keyword arguments via iterateCallArgs.
func (p *Postprocessor) Call(n *astpkg.Node) bool {
	names := p.retrieveCallNames(n)
	if len(names) == 0 {
		return true
	}
	p.detectEntrypoint(n, names)

	for name := range names {
		defi := p.store.Defs.Get(name)
		if defi == nil {
			continue
		}
		if defi.IsClassDef() {
			p.updateParentClasses(defi)
			defi = p.store.Defs.Get(ns.Join(defi.FullNS, ns.InitMethod))
			if defi == nil {
				continue
			}
		}
		p.iterateCallArgs(defi, n)
	}
	p.lastCalledNames = names
	return true
}

func (p *Postprocessor) detectEntrypoint(n *astpkg.Node, names map[string]struct{}) {
	host := p.store.Config.HostModule
	entry := p.store.Config.EntrypointFunc
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
			p.Entrypoints = append(p.Entrypoints, p.text(second))
		}
	}
}

// retrieveCallNames mirrors retrieve_call_names: identifier callees
// resolve via scope+closure, chained calls route through the inner
// call's closured return names, attribute callees route through
// retrieveAttributeNames, and subscript callees through
// retrieveSubscriptNames.
func (p *Postprocessor) retrieveCallNames(n *astpkg.Node) map[string]struct{} {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	switch fn.Type() {
	case "identifier":
		d := p.store.Scopes.GetDef(p.currentNS(), p.text(fn))
		if d == nil {
			return nil
		}
		return p.closureOf(d.FullNS)
	case "call":
		// The walk dispatches this call before its inner call, so the
		// inner callee is resolved here rather than read from
		// lastCalledNames.
		inner := p.retrieveCallNames(fn)
		if len(inner) == 0 {
			return nil
		}
		out := map[string]struct{}{}
		for name := range inner {
			returns := p.closureOf(ns.Join(name, ns.ReturnName))
			for ret := range returns {
				retDef := p.store.Defs.Get(ret)
				if retDef != nil {
					out[retDef.FullNS] = struct{}{}
				}
			}
		}
		return out
	case "attribute":
		return p.retrieveAttributeNames(fn)
	case "subscript":
		full := p.retrieveSubscriptNames(fn)
		out := map[string]struct{}{}
		for name := range full {
			for c := range p.closureOf(name) {
				out[c] = struct{}{}
			}
		}
		return out
	}
	return nil
}

func (p *Postprocessor) retrieveParentNames(attrNode *astpkg.Node) map[string]struct{} {
	obj := attrNode.ChildByFieldName("object")
	if obj == nil {
		return nil
	}
	decoded := p.decodeNode(obj)
	out := map[string]struct{}{}
	for _, v := range decoded {
		if !v.isDef {
			continue
		}
		if closure := p.closureOf(v.def.FullNS); len(closure) > 0 {
			for c := range closure {
				out[c] = struct{}{}
			}
		} else {
			out[v.def.FullNS] = struct{}{}
		}
	}
	return out
}

func (p *Postprocessor) retrieveAttributeNames(attrNode *astpkg.Node) map[string]struct{} {
	attrField := attrNode.ChildByFieldName("attribute")
	if attrField == nil {
		return nil
	}
	attr := p.text(attrField)
	parents := p.retrieveParentNames(attrNode)

	out := map[string]struct{}{}
	for parentName := range parents {
		for name := range p.closureOf(parentName) {
			defi := p.store.Defs.Get(name)
			if defi == nil {
				continue
			}
			if defi.IsClassDef() {
				for clsName := range p.findClsFunNS(defi.FullNS, attr) {
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
				if p.store.Defs.Get(extName) == nil {
					_, _ = p.store.Defs.Create(extName, ns.ExtDef)
				}
				out[extName] = struct{}{}
			}
		}
	}
	return out
}

func (p *Postprocessor) findClsFunNS(clsName, fn string) map[string]struct{} {
	node := p.store.Classes.Get(clsName)
	if node == nil {
		return nil
	}
	var extNames []string
	for _, item := range node.MRO {
		fullNS := ns.Join(item, fn)
		names := map[string]struct{}{}
		if closure := p.closureOf(fullNS); len(closure) > 0 {
			for c := range closure {
				names[c] = struct{}{}
			}
		} else {
			names[fullNS] = struct{}{}
		}
		if p.store.Defs.Get(fullNS) != nil {
			return names
		}
		if parent := p.store.Defs.Get(item); parent != nil && parent.IsExtDef() {
			extNames = append(extNames, fullNS)
		}
	}
	result := map[string]struct{}{}
	for _, name := range extNames {
		if p.store.Defs.Get(name) == nil {
			_, _ = p.store.Defs.Create(name, ns.ExtDef)
		}
		result[name] = struct{}{}
	}
	return result
}

func (p *Postprocessor) retrieveSubscriptNames(n *astpkg.Node) map[string]struct{} {
	valueNode := n.ChildByFieldName("value")
	subNode := n.ChildByFieldName("subscript")
	if valueNode == nil || subNode == nil {
		return nil
	}
	valNames := p.decodeNode(valueNode)
	slNames := p.decodeNode(subNode)

	decodedVals := map[string]struct{}{}
	for _, v := range valNames {
		if v.isDef {
			for c := range p.closureOf(v.def.FullNS) {
				decodedVals[c] = struct{}{}
			}
		}
	}
	keys := map[string]struct{}{}
	for _, s := range slNames {
		if s.isDef {
			for c := range p.closureOf(s.def.FullNS) {
				defi := p.store.Defs.Get(c)
				if defi == nil {
					continue
				}
				for lit := range defi.LiteralPointer.Values() {
					keys[lit] = struct{}{}
				}
			}
		} else {
			keys[s.literal] = struct{}{}
		}
	}

	full := map[string]struct{}{}
	for d := range decodedVals {
		for key := range keys {
			full[ns.Join(d, strings.Trim(key, "'\""))] = struct{}{}
		}
	}
	return full
}

// iterateCallArgs binds each positional/keyword argument of a call node
// to the callee's formal parameters (when defi is a function def) or
// records raw positional/keyword argument bindings directly on defi's
// name pointer (used for EXT callees, where no formal parameter list is
// known).
func (p *Postprocessor) iterateCallArgs(defi *definition.Definition, callNode *astpkg.Node) {
	argsNode := callNode.ChildByFieldName("arguments")
	if argsNode == nil {
		return
	}
	pos := 0
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		argNode := argsNode.NamedChild(i)
		if argNode.Type() == "keyword_argument" {
			p.bindKeywordArg(defi, argNode)
			continue
		}
		decoded := p.decodeNode(argNode)
		if defi.IsFunctionDef() {
			posArgs := defi.NamePointer.GetPosArg(pos)
			for name := range posArgs {
				argDef := p.store.Defs.Get(name)
				if argDef == nil {
					continue
				}
				for _, d := range decoded {
					if d.isDef {
						argDef.NamePointer.Add(d.def.FullNS)
					} else {
						argDef.LiteralPointer.AddString(d.literal)
					}
				}
			}
		} else {
			for _, d := range decoded {
				if d.isDef {
					defi.NamePointer.AddPosArg(pos, "", d.def.FullNS)
				}
			}
		}
		pos++
	}
}

func (p *Postprocessor) bindKeywordArg(defi *definition.Definition, kwNode *astpkg.Node) {
	nameNode := kwNode.ChildByFieldName("name")
	valNode := kwNode.ChildByFieldName("value")
	if nameNode == nil || valNode == nil {
		return
	}
	kw := p.text(nameNode)
	decoded := p.decodeNode(valNode)
	if defi.IsFunctionDef() {
		argNames := defi.NamePointer.GetArg(kw)
		for name := range argNames {
			argDef := p.store.Defs.Get(name)
			if argDef == nil {
				continue
			}
			for _, d := range decoded {
				if d.isDef {
					argDef.NamePointer.Add(d.def.FullNS)
				} else {
					argDef.LiteralPointer.AddString(d.literal)
				}
			}
		}
	} else {
		for _, d := range decoded {
			if d.isDef {
				defi.NamePointer.AddArg(kw, d.def.FullNS)
			}
		}
	}
}

// updateParentClasses materializes, for every method/attribute declared
// directly on a class, a same-named NAME definition under each of the
// class's MRO ancestors pointing back to the child's own definition --
// so a call resolved against a base class's namespace still reaches an
// override declared only on the subclass.
func (p *Postprocessor) updateParentClasses(defi *definition.Definition) {
	node := p.store.Classes.Get(defi.FullNS)
	if node == nil {
		return
	}
	currentScope := p.store.Scopes.GetScope(defi.FullNS)
	if currentScope == nil {
		return
	}
	for _, parent := range node.MRO {
		parentDef := p.store.Defs.Get(parent)
		if parentDef == nil {
			continue
		}
		parentScope := p.store.Scopes.GetScope(parent)
		if parentScope == nil {
			continue
		}
		for key, childDef := range currentScope.AllDefs() {
			if key == ns.InitMethod {
				continue
			}
			names := p.findClsFunNS(parentDef.FullNS, key)
			newNS := ns.Join(parentDef.FullNS, key)
			newDef := p.store.Defs.Get(newNS)
			if newDef == nil {
				newDef, _ = p.store.Defs.Create(newNS, ns.NameDef)
			}
			newDef.NamePointer.AddSet(names)
			newDef.NamePointer.Add(childDef.FullNS)
		}
	}
}

// Assignment re-decodes the RHS (now with the closure available) and
// rebinds the target's pointers; most plumbing was already done in
// preprocess, so this mainly upgrades call/attribute/subscript RHS
// expressions preprocess could not fully resolve without a closure.
func (p *Postprocessor) Assignment(n *astpkg.Node) bool {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return true
	}
	targetNS := ns.Join(p.currentNS(), p.text(left))
	targetDef := p.store.Defs.Get(targetNS)
	if targetDef == nil {
		return true
	}
	for _, d := range p.decodeNode(right) {
		if d.isDef {
			targetDef.NamePointer.Add(d.def.FullNS)
		} else {
			targetDef.LiteralPointer.AddString(d.literal)
		}
	}
	return true
}

// Return and Yield both feed the enclosing callable's <return> pointer.
func (p *Postprocessor) Return(n *astpkg.Node) bool { p.visitReturn(n); return true }
func (p *Postprocessor) Yield(n *astpkg.Node) bool  { p.visitReturn(n); return true }

func (p *Postprocessor) visitReturn(n *astpkg.Node) {
	if n.NamedChildCount() == 0 {
		return
	}
	valNode := n.NamedChild(0)
	retNS := ns.Join(p.currentNS(), ns.ReturnName)
	retDef := p.store.Defs.Get(retNS)
	if retDef == nil {
		retDef, _ = p.store.Defs.Create(retNS, ns.NameDef)
	}
	for _, d := range p.decodeNode(valNode) {
		if d.isDef {
			retDef.NamePointer.Add(d.def.FullNS)
		} else {
			retDef.LiteralPointer.AddString(d.literal)
		}
	}
}

// ForLoop routes the loop target through the iterable's __next__ return
// value when one is known, falling back to a direct pointer to the raw
// iterable (e.g. a yielded value) otherwise.
func (p *Postprocessor) ForLoop(n *astpkg.Node) bool {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return true
	}
	targetNS := ns.Join(p.currentNS(), p.text(left))
	targetDef := p.store.Defs.Get(targetNS)
	if targetDef == nil {
		return true
	}
	for _, item := range p.decodeNode(right) {
		if !item.isDef {
			continue
		}
		for name := range p.closureOf(item.def.FullNS) {
			nextRetNS := ns.Join(name, ns.NextMethod, ns.ReturnName)
			if nextDef := p.store.Defs.Get(nextRetNS); nextDef != nil {
				for c := range p.closureOf(nextDef.FullNS) {
					targetDef.NamePointer.Add(c)
				}
			} else {
				targetDef.NamePointer.Add(name)
			}
		}
	}
	return true
}

// decodeNode is the expression evaluator shared by call/attribute/
// subscript/assignment handling: it resolves an expression node to the
// set of Definitions or literal values it may denote.
func (p *Postprocessor) decodeNode(n *astpkg.Node) []value {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		if d := p.store.Scopes.GetDef(p.currentNS(), p.text(n)); d != nil {
			return []value{{def: d, isDef: true}}
		}
		return nil
	case "call":
		names := p.retrieveCallNames(n)
		var out []value
		for name := range names {
			if d := p.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	case "attribute":
		names := p.retrieveAttributeNames(n)
		var out []value
		for name := range names {
			if d := p.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	case "subscript":
		names := p.retrieveSubscriptNames(n)
		var out []value
		for name := range names {
			if d := p.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	case "string":
		return []value{{literal: strings.Trim(p.text(n), "'\""), isDef: false}}
	case "integer", "float":
		return []value{{literal: p.text(n), isDef: false}}
	case "tuple":
		var out []value
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, p.decodeNode(n.NamedChild(i))...)
		}
		return out
	case "binary_operator":
		left := n.ChildByFieldName("left")
		decodedLeft := p.decodeNode(left)
		if len(decodedLeft) > 0 && !decodedLeft[0].isDef {
			return decodedLeft
		}
		right := n.ChildByFieldName("right")
		return p.decodeNode(right)
	default:
		return nil
	}
}
