// Package pointer implements the value-set lattices that back every
// Definition's points-to state: a NamePointer tracking namespaces a name
// may resolve to (plus argument bindings for callables), and a
// LiteralPointer tracking literal string/int constants.
package pointer

import "sort"

// NamePointer holds the set of namespaces a name may resolve to, along
// with, for callable definitions, the points-to sets bound to each of its
// formal parameters.
type NamePointer struct {
	values    map[string]struct{}
	args      map[string]map[string]struct{}
	posToName map[int]string
	nameToPos map[string]int
}

// NewNamePointer returns an empty NamePointer ready for use.
func NewNamePointer() *NamePointer {
	return &NamePointer{
		values:    map[string]struct{}{},
		args:      map[string]map[string]struct{}{},
		posToName: map[int]string{},
		nameToPos: map[string]int{},
	}
}

// Values returns the set of namespaces this name may refer to.
func (p *NamePointer) Values() map[string]struct{} { return p.values }

// Add unions ns into the value set.
func (p *NamePointer) Add(ns string) {
	if ns == "" {
		return
	}
	p.values[ns] = struct{}{}
}

// AddSet unions every namespace in set into the value set.
func (p *NamePointer) AddSet(set map[string]struct{}) {
	for ns := range set {
		p.Add(ns)
	}
}

// Merge unions other's values, positional/name argument maps, and
// per-argument points-to sets into p.
func (p *NamePointer) Merge(other *NamePointer) {
	if other == nil {
		return
	}
	p.AddSet(other.values)
	for pos, name := range other.posToName {
		p.posToName[pos] = name
	}
	for name, pos := range other.nameToPos {
		p.nameToPos[name] = pos
	}
	for name, items := range other.args {
		dst := p.args[name]
		if dst == nil {
			dst = map[string]struct{}{}
			p.args[name] = dst
		}
		for item := range items {
			dst[item] = struct{}{}
		}
	}
}

// AddPosArg binds item, a single namespace, to the parameter at
// positional index pos. If name is empty, the name already bound to pos
// is reused when known, otherwise the position itself (stringified) is
// used as the argument key.
func (p *NamePointer) AddPosArg(pos int, name string, item string) {
	if name == "" {
		if existing, ok := p.posToName[pos]; ok {
			name = existing
		} else {
			name = posKey(pos)
		}
	}
	p.posToName[pos] = name
	p.nameToPos[name] = pos
	p.AddArg(name, item)
}

// AddArg unions item into the points-to set bound to the named parameter.
func (p *NamePointer) AddArg(name string, item string) {
	if name == "" || item == "" {
		return
	}
	set := p.args[name]
	if set == nil {
		set = map[string]struct{}{}
		p.args[name] = set
	}
	set[item] = struct{}{}
}

// AddArgSet unions every namespace in items into the points-to set bound
// to the named parameter.
func (p *NamePointer) AddArgSet(name string, items map[string]struct{}) {
	for item := range items {
		p.AddArg(name, item)
	}
}

// GetArg returns the points-to set bound to the named parameter, or nil.
func (p *NamePointer) GetArg(name string) map[string]struct{} { return p.args[name] }

// GetPosArg returns the points-to set bound to the parameter at
// positional index pos, or nil if no name is known for that position.
func (p *NamePointer) GetPosArg(pos int) map[string]struct{} {
	name, ok := p.posToName[pos]
	if !ok {
		return nil
	}
	return p.args[name]
}

// GetPosOfName returns the positional index bound to name and whether one
// is known.
func (p *NamePointer) GetPosOfName(name string) (int, bool) {
	pos, ok := p.nameToPos[name]
	return pos, ok
}

// Args returns the full name -> points-to-set argument map, for iteration
// by the fixed-point solver.
func (p *NamePointer) Args() map[string]map[string]struct{} { return p.args }

// NameToPos exposes the name -> position map for the solver's positional
// fallback matching.
func (p *NamePointer) NameToPos() map[string]int { return p.nameToPos }

// SortedValues returns Values in sorted order, for deterministic output.
func (p *NamePointer) SortedValues() []string {
	out := make([]string, 0, len(p.values))
	for v := range p.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func posKey(pos int) string {
	const digits = "0123456789"
	if pos == 0 {
		return "0"
	}
	neg := pos < 0
	if neg {
		pos = -pos
	}
	var buf []byte
	for pos > 0 {
		buf = append([]byte{digits[pos%10]}, buf...)
		pos /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

// Literal tags collapsing every non string/int literal kind.
const (
	LiteralString  = "STRING"
	LiteralInteger = "INTEGER"
	LiteralUnknown = "UNKNOWN"
)

// LiteralPointer tracks the literal values (or collapsed tags) a
// Definition's literal pointer may hold. Strings and ints are stored
// verbatim so that container keys can be matched against them; every
// other literal kind collapses to LiteralUnknown.
type LiteralPointer struct {
	values map[string]struct{}
}

// NewLiteralPointer returns an empty LiteralPointer.
func NewLiteralPointer() *LiteralPointer {
	return &LiteralPointer{values: map[string]struct{}{}}
}

// Values returns the literal value set.
func (p *LiteralPointer) Values() map[string]struct{} { return p.values }

// AddString records a literal string value verbatim.
func (p *LiteralPointer) AddString(s string) { p.values[s] = struct{}{} }

// AddInt records a literal integer value verbatim (stringified).
func (p *LiteralPointer) AddInt(s string) { p.values[s] = struct{}{} }

// AddUnknown records the presence of some non-string/int literal.
func (p *LiteralPointer) AddUnknown() { p.values[LiteralUnknown] = struct{}{} }

// Merge unions other's literal values into p.
func (p *LiteralPointer) Merge(other *LiteralPointer) {
	if other == nil {
		return
	}
	for v := range other.values {
		p.values[v] = struct{}{}
	}
}
