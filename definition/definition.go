// Package definition implements the per-namespace Definition entity and
// the DefinitionManager that owns the points-to store: creation,
// import-aliasing, the memoized transitive closure, and the bounded
// fixed-point argument-propagation solver (complete_definitions).
package definition

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/pointer"
)

// StructuralError reports a programming error in pointer/definition
// operations: an empty namespace, an invalid definition type, a
// duplicate create, or an edge added from a non-existent node. These are
// never swallowed; the current pass aborts.
type StructuralError struct{ Msg string }

func (e *StructuralError) Error() string { return e.Msg }

func structuralf(format string, args ...any) *StructuralError {
	return &StructuralError{Msg: fmt.Sprintf(format, args...)}
}

// Definition is a single named entity in the points-to store.
type Definition struct {
	FullNS         string
	DefType        string
	NamePointer    *pointer.NamePointer
	LiteralPointer *pointer.LiteralPointer
	DecoratorNames map[string]struct{}
}

var validTypes = map[string]struct{}{
	ns.FunDef: {}, ns.ModDef: {}, ns.NameDef: {}, ns.ClsDef: {}, ns.ExtDef: {},
}

func newDefinition(fullns, defType string) *Definition {
	return &Definition{
		FullNS:         fullns,
		DefType:        defType,
		NamePointer:    pointer.NewNamePointer(),
		LiteralPointer: pointer.NewLiteralPointer(),
	}
}

// IsFunctionDef reports whether this definition is a FUN.
func (d *Definition) IsFunctionDef() bool { return d.DefType == ns.FunDef }

// IsModuleDef reports whether this definition is a MOD.
func (d *Definition) IsModuleDef() bool { return d.DefType == ns.ModDef }

// IsNameDef reports whether this definition is a NAME.
func (d *Definition) IsNameDef() bool { return d.DefType == ns.NameDef }

// IsClassDef reports whether this definition is a CLS.
func (d *Definition) IsClassDef() bool { return d.DefType == ns.ClsDef }

// IsExtDef reports whether this definition is an EXT.
func (d *Definition) IsExtDef() bool { return d.DefType == ns.ExtDef }

// IsCallable reports whether this definition can appear as a call target.
func (d *Definition) IsCallable() bool { return d.IsFunctionDef() || d.IsExtDef() }

// Name returns the last dotted component of the namespace.
func (d *Definition) Name() string { return ns.Short(d.FullNS) }

// Merge unions other's pointers into d.
func (d *Definition) Merge(other *Definition) {
	if other == nil {
		return
	}
	d.NamePointer.Merge(other.NamePointer)
	d.LiteralPointer.Merge(other.LiteralPointer)
}

// Manager owns every Definition created during analysis, keyed by
// namespace, and implements the transitive-closure and fixed-point
// argument-propagation algorithms.
type Manager struct {
	defs map[string]*Definition
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{defs: map[string]*Definition{}}
}

// Create registers a brand new Definition at ns of the given type. It is
// a structural error to create a definition with an empty namespace, an
// unrecognized type, or a namespace that already exists.
func (m *Manager) Create(fullns, defType string) (*Definition, error) {
	if fullns == "" {
		return nil, structuralf("invalid namespace argument")
	}
	if _, ok := validTypes[defType]; !ok {
		return nil, structuralf("invalid def type argument: %s", defType)
	}
	if _, exists := m.defs[fullns]; exists {
		return nil, structuralf("definition already exists: %s", fullns)
	}
	d := newDefinition(fullns, defType)
	m.defs[fullns] = d
	log.Debug().Str("ns", fullns).Str("type", defType).Msg("definition.Create")
	return d, nil
}

// Assign creates a fresh Definition at dstNS of src's type and merges src
// into it (used for import aliasing). If src is a function definition, a
// companion <dstNS>.<return> NAME definition is also created, pointing at
// <src.FullNS>.<return>.
func (m *Manager) Assign(dstNS string, src *Definition) (*Definition, error) {
	if src == nil {
		return nil, structuralf("cannot assign from nil definition")
	}
	d := newDefinition(dstNS, src.DefType)
	d.Merge(src)
	m.defs[dstNS] = d

	if src.IsFunctionDef() {
		retNS := ns.Join(dstNS, ns.ReturnName)
		if _, exists := m.defs[retNS]; !exists {
			ret := newDefinition(retNS, ns.NameDef)
			ret.NamePointer.Add(ns.Join(src.FullNS, ns.ReturnName))
			m.defs[retNS] = ret
		}
	}
	return d, nil
}

// Get returns the definition at ns, or nil if none exists.
func (m *Manager) Get(fullns string) *Definition { return m.defs[fullns] }

// Defs exposes the full namespace -> Definition map.
func (m *Manager) Defs() map[string]*Definition { return m.defs }

// HandleFunctionDef idempotently creates (or returns the existing) FUN
// definition at parentNS.fnName, and ensures its companion <return> NAME
// definition exists.
func (m *Manager) HandleFunctionDef(parentNS, fnName string) *Definition {
	fullNS := ns.Join(parentNS, fnName)
	d := m.Get(fullNS)
	if d == nil {
		d, _ = m.Create(fullNS, ns.FunDef)
		d.DecoratorNames = map[string]struct{}{}
	}
	retNS := ns.Join(fullNS, ns.ReturnName)
	if m.Get(retNS) == nil {
		_, _ = m.Create(retNS, ns.NameDef)
	}
	return d
}

// HandleClassDef idempotently creates (or returns the existing) CLS
// definition at parentNS.clsName.
func (m *Manager) HandleClassDef(parentNS, clsName string) *Definition {
	fullNS := ns.Join(parentNS, clsName)
	d := m.Get(fullNS)
	if d == nil {
		d, _ = m.Create(fullNS, ns.ClsDef)
	}
	return d
}

// TransitiveClosure returns, for every definition, the reflexive-
// transitive closure of its name pointer's values: a DFS with memoization
// where a definition with an empty name pointer maps to {ns} (itself),
// and any other definition's image is the union of the closures of every
// namespace it points to (substituting {name} for any target whose own
// closure comes back empty).
func (m *Manager) TransitiveClosure() map[string]map[string]struct{} {
	log.Info().Int("defs", len(m.defs)).Msg("definition.TransitiveClosure")
	closured := map[string]map[string]struct{}{}

	var dfs func(d *Definition) map[string]struct{}
	dfs = func(d *Definition) map[string]struct{} {
		if set, ok := closured[d.FullNS]; ok {
			return set
		}
		newSet := map[string]struct{}{}
		if len(d.NamePointer.Values()) == 0 {
			newSet[d.FullNS] = struct{}{}
		}
		closured[d.FullNS] = newSet

		for name := range d.NamePointer.Values() {
			target := m.defs[name]
			if target == nil {
				continue
			}
			items := dfs(target)
			if len(items) == 0 {
				newSet[name] = struct{}{}
				continue
			}
			for item := range items {
				newSet[item] = struct{}{}
			}
		}
		return newSet
	}

	for _, d := range m.defs {
		if _, done := closured[d.FullNS]; !done {
			dfs(d)
		}
	}
	return closured
}

// CompleteDefinitions runs the bounded fixed-point argument-propagation
// solver: for every definition D and every namespace N in D's name
// pointer values (snapshot), for every argument of D, pushes D's argument
// set into N's matching formal parameter (matched by positional index
// first, falling back to parameter name). The outer loop runs at most
// len(defs) iterations and exits early on a full pass with no growth.
func (m *Manager) CompleteDefinitions() {
	log.Info().Int("defs", len(m.defs)).Msg("definition.CompleteDefinitions")

	updatePointsToArgs := func(pointsToArgs map[string]struct{}, arg map[string]struct{}, name string) bool {
		changed := false
		if setEqual(arg, pointsToArgs) {
			return false
		}
		for pointsToArg := range pointsToArgs {
			target := m.defs[pointsToArg]
			if target == nil {
				continue
			}
			if pointsToArg == name {
				continue
			}
			pointsToArgDef := target.NamePointer

			// A cycle: the candidate being pushed into already appears in
			// arg itself; drop it before propagating further.
			localArg := arg
			if _, ok := arg[pointsToArg]; ok {
				localArg = map[string]struct{}{}
				for k := range arg {
					if k != pointsToArg {
						localArg[k] = struct{}{}
					}
				}
			}

			for item := range localArg {
				if _, has := pointsToArgDef.Values()[item]; !has {
					if m.defs[item] != nil {
						changed = true
					}
				}
				if m.defs[item] == nil {
					continue
				}
				pointsToArgDef.Add(item)
			}
		}
		return changed
	}

	n := len(m.defs)
	for i := 0; i < n; i++ {
		log.Debug().Int("iteration", i).Msg("definition.CompleteDefinitions pass")
		changedSomething := false
		for currentNS, currentDef := range m.defs {
			currentNamePointer := currentDef.NamePointer
			for name := range copySet(currentNamePointer.Values()) {
				if name == currentNS {
					continue
				}
				target := m.defs[name]
				if target == nil {
					continue
				}
				pointsToNamePointer := target.NamePointer

				for argName, arg := range currentNamePointer.Args() {
					if pos, ok := currentNamePointer.NameToPos()[argName]; ok {
						pointsToArgs := pointsToNamePointer.GetPosArg(pos)
						if pointsToArgs == nil {
							// Defer to the target's own name at this position
							// (falling back to the position itself), not the
							// propagating definition's own parameter name.
							for item := range arg {
								pointsToNamePointer.AddPosArg(pos, "", item)
							}
							continue
						}
						if updatePointsToArgs(pointsToArgs, copySet(arg), currentDef.FullNS) {
							changedSomething = true
						}
						continue
					}
					pointsToArgs := pointsToNamePointer.GetArg(argName)
					if pointsToArgs == nil {
						pointsToNamePointer.AddArgSet(argName, arg)
						continue
					}
					if updatePointsToArgs(pointsToArgs, copySet(arg), currentDef.FullNS) {
						changedSomething = true
					}
				}
			}
		}
		if !changedSomething {
			break
		}
	}
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
