// Package classtable stores ClassNodes and the raw inheritance relation,
// and implements the two coexisting MRO linearization algorithms
// (fix_mro, keeping the last occurrence; compute_mro, keeping the first
// occurrence via a reverse/collapse/reverse). This is intentionally
// simpler than C3 linearization, as specified.
package classtable

import "fmt"

// StructuralError reports an invalid class-table operation.
type StructuralError struct{ Msg string }

func (e *StructuralError) Error() string { return e.Msg }

// Node is one class's MRO state. MRO[0] is always the class's own
// namespace once initialized.
type Node struct {
	NS     string
	Module string
	MRO    []string
}

// Table owns every ClassNode plus the raw, not-yet-linearized inheritance
// relation (child -> set of parent namespaces).
type Table struct {
	nodes       map[string]*Node
	inheritance map[string]map[string]struct{}
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{nodes: map[string]*Node{}, inheritance: map[string]map[string]struct{}{}}
}

// Create registers a new ClassNode at ns, seeded with MRO = [ns].
func (t *Table) Create(fullns, module string) *Node {
	if existing, ok := t.nodes[fullns]; ok {
		return existing
	}
	n := &Node{NS: fullns, Module: module, MRO: []string{fullns}}
	t.nodes[fullns] = n
	return n
}

// Get returns the ClassNode at ns, or nil.
func (t *Table) Get(fullns string) *Node { return t.nodes[fullns] }

// Nodes exposes every ClassNode, for postprocess's MRO finalization pass.
func (t *Table) Nodes() map[string]*Node { return t.nodes }

// LinkInheritance records the raw child -> parent inheritance relation
// without touching either node's MRO; MRO finalization happens later, in
// postprocess, via ClearMRO/AddParent/ComputeMRO.
func (t *Table) LinkInheritance(child, parent string) {
	set := t.inheritance[child]
	if set == nil {
		set = map[string]struct{}{}
		t.inheritance[child] = set
	}
	set[parent] = struct{}{}
}

// Parents returns the raw set of parent namespaces linked to child.
func (t *Table) Parents(child string) map[string]struct{} { return t.inheritance[child] }

// ClearMRO resets n's MRO back to just itself, in preparation for a fresh
// re-walk of its bases.
func (n *Node) ClearMRO() { n.MRO = []string{n.NS} }

// AddParent appends parent's namespace (or, if parent already has a
// linearized MRO of its own, every namespace in that MRO) to the child's
// MRO list, then immediately re-collapses duplicates via FixMRO
// (keep-last-occurrence). This mirrors the original source's add_parent,
// which is invoked once per declared base while still discovering the
// inheritance chain.
func (n *Node) AddParent(parent *Node) {
	if parent == nil {
		return
	}
	if len(parent.MRO) > 0 {
		n.MRO = append(n.MRO, parent.MRO...)
	} else {
		n.MRO = append(n.MRO, parent.NS)
	}
	n.FixMRO()
}

// FixMRO drops duplicates from MRO, keeping the *last* occurrence of
// each namespace: scanning left-to-right, an element is dropped if it
// still appears later in the list.
func (n *Node) FixMRO() {
	out := make([]string, 0, len(n.MRO))
	for i, item := range n.MRO {
		if containsFrom(n.MRO, item, i+1) {
			continue
		}
		out = append(out, item)
	}
	n.MRO = out
}

// ComputeMRO finalizes n's MRO: reverses the list, collapses duplicates
// keeping the *first* occurrence seen in the reversed list, then reverses
// back. Invoked once per class at the end of postprocess's
// MRO-finalization walk.
func (n *Node) ComputeMRO() {
	reversed := make([]string, len(n.MRO))
	for i, v := range n.MRO {
		reversed[len(n.MRO)-1-i] = v
	}
	seen := map[string]struct{}{}
	collapsed := make([]string, 0, len(reversed))
	for _, item := range reversed {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		collapsed = append(collapsed, item)
	}
	out := make([]string, len(collapsed))
	for i, v := range collapsed {
		out[len(collapsed)-1-i] = v
	}
	n.MRO = out
}

func containsFrom(list []string, item string, from int) bool {
	for i := from; i < len(list); i++ {
		if list[i] == item {
			return true
		}
	}
	return false
}

func structuralf(format string, args ...any) *StructuralError {
	return &StructuralError{Msg: fmt.Sprintf(format, args...)}
}

// MustCreate rejects an empty fullns with a StructuralError and otherwise
// delegates to Create.
func (t *Table) MustCreate(fullns, module string) (*Node, error) {
	if fullns == "" {
		return nil, structuralf("invalid class namespace")
	}
	return t.Create(fullns, module), nil
}
