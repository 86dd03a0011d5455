// Package pass1 implements the preprocess pass: per module, in
// import-discovery order, it registers modules/scopes, declares
// functions/classes/parameters, wires imports, and seeds the immediate
// points-to relationships that postprocess later propagates to a fixed
// point. Grounded on the specification's §4.G and on
// original_source/pycg/processing/preprocessor.py and processing/base.py.
package pass1

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viant/callgraph/classtable"
	"github.com/viant/callgraph/definition"
	astpkg "github.com/viant/callgraph/internal/ast"
	"github.com/viant/callgraph/internal/config"
	"github.com/viant/callgraph/importresolver"
	"github.com/viant/callgraph/moduletable"
	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/scope"
)

// Store bundles every shared piece of analysis state the preprocess pass
// mutates; postprocess and the emitter operate over the same Store.
type Store struct {
	Defs    *definition.Manager
	Scopes  *scope.Manager
	Classes *classtable.Table
	Modules *moduletable.Table
	Imports *importresolver.Resolver
	Config  *config.Options

	// ResolveModule maps a module namespace to its absolute source path,
	// populated by internal/source's package walk.
	ResolveModule func(moduleName string) (string, bool)

	// ReadFile reads source bytes for an absolute path (normally backed
	// by importresolver.Resolver.ReadFile).
	ReadFile func(ctx context.Context, path string) []byte

	analyzed map[string]bool
}

// NewStore wires a fresh Store from its collaborators.
func NewStore(cfg *config.Options, imports *importresolver.Resolver) *Store {
	return &Store{
		Defs:     definition.NewManager(),
		Scopes:   scope.NewManager(),
		Classes:  classtable.NewTable(),
		Modules:  moduletable.NewTable(),
		Imports:  imports,
		Config:   cfg,
		analyzed: map[string]bool{},
	}
}

// Preprocessor walks one module's AST, implementing ast.Visitor. A new
// Preprocessor is created per module by Store.Preprocess, but all of them
// share the same Store.
type Preprocessor struct {
	astpkg.BaseVisitor

	store     *Store
	moduleNS  string
	src       []byte
	nsStack   []string
	scopeStk  []*scope.Scope
	classStk  []string
	staticTop bool
}

// Preprocess analyzes moduleNS (whose source lives at absPath) if it has
// not already been analyzed, recursing into internal imports as they are
// discovered. It is safe to call repeatedly; already-analyzed modules are
// a no-op.
func (s *Store) Preprocess(ctx context.Context, moduleNS, absPath string) error {
	if s.analyzed[moduleNS] {
		return nil
	}
	s.analyzed[moduleNS] = true

	restore := s.Imports.SetCurrentMod(moduleNS, absPath)
	defer restore()

	if _, err := s.Imports.CreateNode(moduleNS); err != nil {
		log.Debug().Err(err).Str("module", moduleNS).Msg("pass1: node already exists")
	}
	_ = s.Imports.SetFilepath(moduleNS, absPath)

	src := s.ReadFile(ctx, absPath)
	tree, err := astpkg.Parse(ctx, src)
	if err != nil {
		return fmt.Errorf("pass1: parse %s: %w", absPath, err)
	}
	if tree.HasError() {
		log.Warn().Str("module", moduleNS).Msg("pass1: syntax error, skipping module")
		return nil
	}

	modDef := s.Defs.Get(moduleNS)
	if modDef == nil {
		modDef, _ = s.Defs.Create(moduleNS, ns.ModDef)
	}
	rootScope := s.Scopes.CreateScope(moduleNS, nil)
	s.Modules.CreateInternal(moduleNS, absPath)
	_ = modDef

	p := &Preprocessor{
		store:    s,
		moduleNS: moduleNS,
		src:      src,
		nsStack:  []string{moduleNS},
		scopeStk: []*scope.Scope{rootScope},
	}
	astpkg.Walk(tree.Root, p)
	return nil
}

func (p *Preprocessor) currentNS() string    { return p.nsStack[len(p.nsStack)-1] }
func (p *Preprocessor) currentScope() *scope.Scope {
	return p.scopeStk[len(p.scopeStk)-1]
}
func (p *Preprocessor) inClass() (string, bool) {
	if len(p.classStk) == 0 {
		return "", false
	}
	return p.classStk[len(p.classStk)-1], true
}

func (p *Preprocessor) text(n *astpkg.Node) string { return astpkg.Text(n, p.src) }

// FunctionDef handles both module-level functions and methods, binding
// and dropping the receiver for non-static methods, seeding default
// values, and descending into the body under the function's own scope.
func (p *Preprocessor) FunctionDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	name := p.text(nameNode)
	parentNS := p.currentNS()
	fnDef := p.store.Defs.HandleFunctionDef(parentNS, name)
	fnNS := ns.Join(parentNS, name)
	p.store.Scopes.HandleAssign(parentNS, name, fnDef)
	fnScope := p.store.Scopes.CreateScope(fnNS, p.currentScope())

	classNS, isMethod := p.inClass()
	static := isMethod && p.isStaticmethod(n)

	paramsNode := n.ChildByFieldName("parameters")
	pos := 0
	receiverPending := isMethod && !static
	if paramsNode != nil {
		for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
			param := paramsNode.NamedChild(i)
			paramName, defaultNode := p.paramNameAndDefault(param)
			if paramName == "" {
				continue
			}
			if receiverPending {
				// bind and drop the receiver; it never occupies a
				// positional slot in the exposed signature
				recvNS := ns.Join(fnNS, paramName)
				recvDef, _ := p.store.Defs.Create(recvNS, ns.NameDef)
				recvDef.NamePointer.Add(classNS)
				p.store.Scopes.HandleAssign(fnNS, paramName, recvDef)
				receiverPending = false
				continue
			}
			paramNS := ns.Join(fnNS, paramName)
			paramDef := p.store.Defs.Get(paramNS)
			if paramDef == nil {
				paramDef, _ = p.store.Defs.Create(paramNS, ns.NameDef)
			}
			// args[paramName] seeds with the parameter's own namespace, so
			// later call-site binding (iterate_call_args) resolves back to
			// this very definition and merges the passed value into it.
			fnDef.NamePointer.AddPosArg(pos, paramName, paramNS)
			p.store.Scopes.HandleAssign(fnNS, paramName, paramDef)
			if defaultNode != nil {
				p.seedDefault(fnDef, paramDef, paramName, defaultNode, parentNS)
			}
			pos++
		}
	}

	if decorators := p.decoratorNames(n); len(decorators) > 0 {
		fnDef.DecoratorNames = decorators
	}

	p.nsStack = append(p.nsStack, fnNS)
	p.scopeStk = append(p.scopeStk, fnScope)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, p)
	}
	p.nsStack = p.nsStack[:len(p.nsStack)-1]
	p.scopeStk = p.scopeStk[:len(p.scopeStk)-1]
	return false
}

func (p *Preprocessor) paramNameAndDefault(param *astpkg.Node) (string, *astpkg.Node) {
	switch param.Type() {
	case "identifier":
		return p.text(param), nil
	case "default_parameter", "typed_default_parameter":
		nameNode := param.ChildByFieldName("name")
		valNode := param.ChildByFieldName("value")
		if nameNode == nil {
			return "", nil
		}
		return p.text(nameNode), valNode
	case "typed_parameter":
		// first named child is usually the identifier
		if param.NamedChildCount() > 0 {
			return p.text(param.NamedChild(0)), nil
		}
	case "list_splat_pattern", "dictionary_splat_pattern":
		if param.NamedChildCount() > 0 {
			return p.text(param.NamedChild(0)), nil
		}
	}
	return "", nil
}

func (p *Preprocessor) seedDefault(fnDef, paramDef *definition.Definition, paramName string, valNode *astpkg.Node, scopeNS string) {
	switch valNode.Type() {
	case "identifier":
		if d := p.store.Scopes.GetDef(scopeNS, p.text(valNode)); d != nil {
			fnDef.NamePointer.AddArg(paramName, d.FullNS)
			paramDef.NamePointer.Add(d.FullNS)
		}
	case "string":
		paramDef.LiteralPointer.AddString(p.text(valNode))
	case "integer", "float":
		paramDef.LiteralPointer.AddInt(p.text(valNode))
	default:
		paramDef.LiteralPointer.AddUnknown()
	}
}

func (p *Preprocessor) isStaticmethod(fnNode *astpkg.Node) bool {
	for name := range p.decoratorNames(fnNode) {
		if name == "staticmethod" {
			return true
		}
	}
	return false
}

// decoratorNames walks up to the enclosing decorated_definition (if any)
// and collects the plain identifier name of each decorator.
func (p *Preprocessor) decoratorNames(fnNode *astpkg.Node) map[string]struct{} {
	out := map[string]struct{}{}
	parent := fnNode.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return out
	}
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		ch := parent.NamedChild(i)
		if ch.Type() != "decorator" {
			continue
		}
		if ch.NamedChildCount() > 0 {
			inner := ch.NamedChild(0)
			out[lastDotted(p.text(inner))] = struct{}{}
		}
	}
	return out
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

// ClassDef creates the class's CLS definition and ClassNode, links raw
// inheritance (MRO is not finalized here -- postprocess does that), and
// descends into the body under the class's own scope.
func (p *Preprocessor) ClassDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	name := p.text(nameNode)
	parentNS := p.currentNS()
	clsDef := p.store.Defs.HandleClassDef(parentNS, name)
	clsNS := ns.Join(parentNS, name)
	p.store.Scopes.HandleAssign(parentNS, name, clsDef)
	clsScope := p.store.Scopes.CreateScope(clsNS, p.currentScope())
	p.store.Classes.Create(clsNS, p.moduleNS)

	if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
		for i := 0; i < int(superclasses.NamedChildCount()); i++ {
			base := superclasses.NamedChild(i)
			baseName := p.resolveBaseNamespace(base)
			if baseName != "" {
				p.store.Classes.LinkInheritance(clsNS, baseName)
			}
		}
	}

	p.nsStack = append(p.nsStack, clsNS)
	p.scopeStk = append(p.scopeStk, clsScope)
	p.classStk = append(p.classStk, clsNS)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, p)
	}
	p.classStk = p.classStk[:len(p.classStk)-1]
	p.nsStack = p.nsStack[:len(p.nsStack)-1]
	p.scopeStk = p.scopeStk[:len(p.scopeStk)-1]
	return false
}

func (p *Preprocessor) resolveBaseNamespace(base *astpkg.Node) string {
	if base.Type() != "identifier" {
		return p.text(base)
	}
	name := p.text(base)
	if d := p.store.Scopes.GetDef(p.currentNS(), name); d != nil {
		if len(d.NamePointer.Values()) > 0 {
			for v := range d.NamePointer.Values() {
				return v
			}
		}
		return d.FullNS
	}
	return name
}

// Assignment seeds the immediate points-to relationship for simple
// `target = value` statements: identifiers propagate the RHS
// definition's namespace, literals populate the literal pointer, simple
// calls route the callee's <return> namespace, and container literals
// synthesize per-element child Definitions.
func (p *Preprocessor) Assignment(n *astpkg.Node) bool {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return true
	}
	targets := p.assignmentTargets(left)
	for _, name := range targets {
		targetNS := ns.Join(p.currentNS(), name)
		targetDef := p.store.Defs.Get(targetNS)
		if targetDef == nil {
			targetDef, _ = p.store.Defs.Create(targetNS, ns.NameDef)
		}
		p.store.Scopes.HandleAssign(p.currentNS(), name, targetDef)
		p.seedRHS(targetDef, right)
	}
	return true
}

func (p *Preprocessor) assignmentTargets(left *astpkg.Node) []string {
	switch left.Type() {
	case "identifier":
		return []string{p.text(left)}
	case "pattern_list", "tuple":
		var out []string
		for i := 0; i < int(left.NamedChildCount()); i++ {
			ch := left.NamedChild(i)
			if ch.Type() == "identifier" {
				out = append(out, p.text(ch))
			}
		}
		return out
	default:
		return nil
	}
}

func (p *Preprocessor) seedRHS(targetDef *definition.Definition, right *astpkg.Node) {
	switch right.Type() {
	case "identifier":
		if d := p.store.Scopes.GetDef(p.currentNS(), p.text(right)); d != nil {
			targetDef.NamePointer.Add(d.FullNS)
		}
	case "string":
		targetDef.LiteralPointer.AddString(p.text(right))
	case "integer", "float":
		targetDef.LiteralPointer.AddInt(p.text(right))
	case "call":
		fnNode := right.ChildByFieldName("function")
		if fnNode != nil && fnNode.Type() == "identifier" {
			if callee := p.store.Scopes.GetDef(p.currentNS(), p.text(fnNode)); callee != nil {
				targetDef.NamePointer.Add(ns.Join(callee.FullNS, ns.ReturnName))
			}
		}
	case "dictionary":
		p.seedDict(targetDef, right)
	case "list", "list_comprehension":
		p.seedList(targetDef, right)
	case "lambda":
		p.seedLambda(targetDef, right)
	default:
		targetDef.LiteralPointer.AddUnknown()
	}
}

func (p *Preprocessor) seedDict(targetDef *definition.Definition, dictNode *astpkg.Node) {
	containerName := p.currentScope().NextDictName()
	containerNS := ns.Join(p.currentNS(), containerName)
	container, _ := p.store.Defs.Create(containerNS, ns.NameDef)
	targetDef.NamePointer.Add(containerNS)

	for i := 0; i < int(dictNode.NamedChildCount()); i++ {
		pair := dictNode.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		keyNode := pair.ChildByFieldName("key")
		valNode := pair.ChildByFieldName("value")
		if keyNode == nil || valNode == nil || keyNode.Type() != "string" {
			continue
		}
		key := strings.Trim(p.text(keyNode), "'\"")
		elemNS := ns.Join(containerNS, key)
		elemDef, _ := p.store.Defs.Create(elemNS, ns.NameDef)
		p.seedRHS(elemDef, valNode)
	}
	_ = container
}

func (p *Preprocessor) seedList(targetDef *definition.Definition, listNode *astpkg.Node) {
	containerName := p.currentScope().NextListName()
	containerNS := ns.Join(p.currentNS(), containerName)
	_, _ = p.store.Defs.Create(containerNS, ns.NameDef)
	targetDef.NamePointer.Add(containerNS)

	for i := 0; i < int(listNode.NamedChildCount()); i++ {
		elem := listNode.NamedChild(i)
		elemNS := ns.Join(containerNS, fmt.Sprintf("%d", i))
		elemDef, _ := p.store.Defs.Create(elemNS, ns.NameDef)
		p.seedRHS(elemDef, elem)
	}
}

func (p *Preprocessor) seedLambda(targetDef *definition.Definition, lambdaNode *astpkg.Node) {
	lambdaName := p.currentScope().NextLambdaName()
	lambdaNS := ns.Join(p.currentNS(), lambdaName)
	fnDef := p.store.Defs.HandleFunctionDef(p.currentNS(), lambdaName)
	targetDef.NamePointer.Add(lambdaNS)

	lambdaScope := p.store.Scopes.CreateScope(lambdaNS, p.currentScope())
	if paramsNode := lambdaNode.ChildByFieldName("parameters"); paramsNode != nil {
		for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
			paramName, _ := p.paramNameAndDefault(paramsNode.NamedChild(i))
			if paramName == "" {
				continue
			}
			paramNS := ns.Join(lambdaNS, paramName)
			paramDef, _ := p.store.Defs.Create(paramNS, ns.NameDef)
			p.store.Scopes.HandleAssign(lambdaNS, paramName, paramDef)
			fnDef.NamePointer.AddPosArg(i, paramName, paramNS)
		}
	}
	if body := lambdaNode.ChildByFieldName("body"); body != nil && body.Type() == "identifier" {
		if d := p.store.Scopes.GetDef(lambdaNS, p.text(body)); d != nil {
			retNS := ns.Join(lambdaNS, ns.ReturnName)
			if ret := p.store.Defs.Get(retNS); ret != nil {
				ret.NamePointer.Add(d.FullNS)
			}
		}
	}
}

// Import handles `import a.b.c [as alias]` for every dotted name in the
// statement, recursing into internal modules that have not yet been
// analyzed and copying the resolved definition into the current scope
// under its alias.
func (p *Preprocessor) Import(n *astpkg.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		var moduleName, alias string
		switch child.Type() {
		case "dotted_name":
			moduleName = p.text(child)
			alias = ns.Root(moduleName)
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode != nil {
				moduleName = p.text(nameNode)
			}
			if aliasNode != nil {
				alias = p.text(aliasNode)
			} else {
				alias = ns.Root(moduleName)
			}
		default:
			continue
		}
		p.bindImport(moduleName, alias, 0)
	}
	return true
}

// ImportFrom handles `from <module> import a, b as c` and `from . import
// *`, resolving the source module and copying each requested symbol (or,
// for star imports, every definition in its scope) into the current
// scope.
func (p *Preprocessor) ImportFrom(n *astpkg.Node) bool {
	moduleNode := n.ChildByFieldName("module_name")
	level := 0
	moduleName := ""
	if moduleNode != nil {
		moduleName = p.text(moduleNode)
	}
	// count leading dots for relative-import level
	for _, r := range moduleName {
		if r == '.' {
			level++
			continue
		}
		break
	}
	moduleName = moduleName[level:]

	resolvedMod := p.store.Imports.HandleImport(moduleName, level, p.store.resolveFunc())
	if resolvedMod != "" {
		if absPath, ok := p.store.ResolveModule(resolvedMod); ok {
			_ = p.store.Preprocess(context.Background(), resolvedMod, absPath)
		}
	}

	star := false
	var names []struct{ name, alias string }
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "wildcard_import":
			star = true
		case "dotted_name", "identifier":
			nm := p.text(child)
			names = append(names, struct{ name, alias string }{nm, nm})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			nm, al := "", ""
			if nameNode != nil {
				nm = p.text(nameNode)
			}
			if aliasNode != nil {
				al = p.text(aliasNode)
			} else {
				al = nm
			}
			names = append(names, struct{ name, alias string }{nm, al})
		}
	}

	if star {
		if resolvedMod == "" {
			return true
		}
		srcScope := p.store.Scopes.GetScope(resolvedMod)
		if srcScope == nil {
			return true
		}
		for name, d := range srcScope.AllDefs() {
			p.store.Scopes.HandleAssign(p.currentNS(), name, d)
		}
		return true
	}

	for _, pair := range names {
		if resolvedMod == "" {
			extNS := ns.Join(p.currentNS(), pair.alias)
			ext, _ := p.store.Defs.Create(extNS, ns.ExtDef)
			p.store.Scopes.HandleAssign(p.currentNS(), pair.alias, ext)
			continue
		}
		srcDef := p.store.Scopes.GetDef(resolvedMod, pair.name)
		if srcDef == nil {
			srcNS := ns.Join(resolvedMod, pair.name)
			srcDef, _ = p.store.Defs.Create(srcNS, ns.ExtDef)
		}
		aliasNS := ns.Join(p.currentNS(), pair.alias)
		aliasDef, err := p.store.Defs.Assign(aliasNS, srcDef)
		if err != nil {
			continue
		}
		p.store.Scopes.HandleAssign(p.currentNS(), pair.alias, aliasDef)
	}
	return true
}

func (p *Preprocessor) bindImport(moduleName, alias string, level int) {
	resolvedMod := p.store.Imports.HandleImport(moduleName, level, p.store.resolveFunc())
	var srcDef *definition.Definition
	if resolvedMod != "" {
		if absPath, ok := p.store.ResolveModule(resolvedMod); ok {
			_ = p.store.Preprocess(context.Background(), resolvedMod, absPath)
		}
		srcDef = p.store.Defs.Get(resolvedMod)
	}
	if srcDef == nil {
		srcDef, _ = p.store.Defs.Create(ns.Join(p.currentNS(), moduleName, "<ext>"), ns.ExtDef)
	}
	aliasNS := ns.Join(p.currentNS(), alias)
	aliasDef, err := p.store.Defs.Assign(aliasNS, srcDef)
	if err != nil {
		return
	}
	p.store.Scopes.HandleAssign(p.currentNS(), alias, aliasDef)
}

func (s *Store) resolveFunc() importresolver.ResolveFunc {
	return func(moduleName string) (string, bool) {
		if s.ResolveModule == nil {
			return "", false
		}
		return s.ResolveModule(moduleName)
	}
}

// ForLoop creates the loop target's Definition (left empty; postprocess
// fills its pointer once the iterable's __next__ return is known) for
// the simple-name-target case.
func (p *Preprocessor) ForLoop(n *astpkg.Node) bool {
	left := n.ChildByFieldName("left")
	if left != nil && left.Type() == "identifier" {
		name := p.text(left)
		targetNS := ns.Join(p.currentNS(), name)
		if p.store.Defs.Get(targetNS) == nil {
			d, _ := p.store.Defs.Create(targetNS, ns.NameDef)
			p.store.Scopes.HandleAssign(p.currentNS(), name, d)
		}
	}
	return true
}
