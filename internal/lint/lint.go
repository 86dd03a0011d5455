// Package lint implements the dict-subscript "KeyError" report: a re-walk
// of every module, after pass2's transitive closure and argument bindings
// are a fixed point, that flags subscripts into a dict literal whose key
// was never actually assigned -- the call graph itself has no notion of
// this, since it only ever resolves or fails safe on call targets, never
// on container keys. Grounded on
// original_source/pycg/processing/keyerrprocessor.py's visit_Subscript:
// a name is "subscriptable" when it matches the `<dict[0-9]+>` synthetic
// container namespace pattern (seeded by the dictionary-literal preprocess
// step), and a subscriptable name with no backing Definition is reported
// with the container namespace and the missing key split apart.
package lint

import (
	"context"
	"regexp"
	"strings"

	"github.com/viant/callgraph/definition"
	astpkg "github.com/viant/callgraph/internal/ast"
	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/pass1"
)

// Finding is one subscript into a dict literal with no matching key.
type Finding struct {
	Namespace string // the dict container's namespace, e.g. "pkg.mod.<dict0>"
	Key       string // the missing key
	Module    string
	Line      int
}

var subscriptablePattern = regexp.MustCompile(`<dict[0-9]+>`)

func isSubscriptable(name string) bool { return subscriptablePattern.MatchString(name) }

// Check re-parses every internal module known to store and reports every
// dict-literal subscript whose key has no corresponding Definition.
func Check(ctx context.Context, store *pass1.Store) []Finding {
	closured := store.Defs.TransitiveClosure()
	var findings []Finding
	for modNS, mod := range store.Modules.Internal {
		src := store.ReadFile(ctx, mod.Filename)
		tree, err := astpkg.Parse(ctx, src)
		if err != nil || tree.HasError() {
			continue
		}
		c := &checker{store: store, closured: closured, moduleNS: modNS, src: src, nsStack: []string{modNS}}
		astpkg.Walk(tree.Root, c)
		findings = append(findings, c.findings...)
	}
	return findings
}

// value mirrors callgraph.Emitter's and pass2.Postprocessor's decodeNode
// result. Duplicated rather than shared: this pass re-derives the same
// resolution primitives independently, matching keyerrprocessor.py's own
// independent inheritance from processing/base.py alongside cgprocessor.py
// and postprocessor.py.
type value struct {
	def     *definition.Definition
	literal string
	isDef   bool
}

type checker struct {
	astpkg.BaseVisitor

	store    *pass1.Store
	closured map[string]map[string]struct{}
	moduleNS string
	src      []byte
	nsStack  []string

	findings []Finding
}

func (c *checker) currentNS() string      { return c.nsStack[len(c.nsStack)-1] }
func (c *checker) text(n *astpkg.Node) string { return astpkg.Text(n, c.src) }

func (c *checker) closureOf(fullns string) map[string]struct{} {
	if set, ok := c.closured[fullns]; ok {
		return set
	}
	return nil
}

func (c *checker) FunctionDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	fnNS := ns.Join(c.currentNS(), c.text(nameNode))
	c.nsStack = append(c.nsStack, fnNS)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, c)
	}
	c.nsStack = c.nsStack[:len(c.nsStack)-1]
	return false
}

func (c *checker) ClassDef(n *astpkg.Node) bool {
	nameNode := astpkg.FieldOrScan(n, "name", "identifier")
	if nameNode == nil {
		return true
	}
	clsNS := ns.Join(c.currentNS(), c.text(nameNode))
	c.nsStack = append(c.nsStack, clsNS)
	if body := n.ChildByFieldName("body"); body != nil {
		astpkg.Walk(body, c)
	}
	c.nsStack = c.nsStack[:len(c.nsStack)-1]
	return false
}

// Subscript flags every name this subscript's value/key pair decodes to
// that looks like a dict-container access (the name contains a
// "<dictN>" synthetic segment) but has no backing Definition -- a key
// that was read but never written.
func (c *checker) Subscript(n *astpkg.Node) bool {
	for name := range c.retrieveSubscriptNames(n) {
		if !isSubscriptable(name) {
			continue
		}
		if c.store.Defs.Get(name) != nil {
			continue
		}
		container, key := splitLast(name)
		c.findings = append(c.findings, Finding{
			Namespace: container,
			Key:       key,
			Module:    c.moduleNS,
			Line:      astpkg.Line(n),
		})
	}
	return true
}

func splitLast(full string) (head, tail string) {
	idx := strings.LastIndex(full, ".")
	if idx < 0 {
		return "", full
	}
	return full[:idx], full[idx+1:]
}

func (c *checker) retrieveSubscriptNames(n *astpkg.Node) map[string]struct{} {
	valueNode := n.ChildByFieldName("value")
	subNode := n.ChildByFieldName("subscript")
	if valueNode == nil || subNode == nil {
		return nil
	}
	decodedVals := map[string]struct{}{}
	for _, v := range c.decodeNode(valueNode) {
		if v.isDef {
			for cn := range c.closureOf(v.def.FullNS) {
				decodedVals[cn] = struct{}{}
			}
		}
	}
	keys := map[string]struct{}{}
	for _, s := range c.decodeNode(subNode) {
		if s.isDef {
			for cn := range c.closureOf(s.def.FullNS) {
				defi := c.store.Defs.Get(cn)
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

func (c *checker) decodeNode(n *astpkg.Node) []value {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		if d := c.store.Scopes.GetDef(c.currentNS(), c.text(n)); d != nil {
			return []value{{def: d, isDef: true}}
		}
		return nil
	case "string":
		return []value{{literal: strings.Trim(c.text(n), "'\""), isDef: false}}
	case "integer", "float":
		return []value{{literal: c.text(n), isDef: false}}
	case "subscript":
		var out []value
		for name := range c.retrieveSubscriptNames(n) {
			if d := c.store.Defs.Get(name); d != nil {
				out = append(out, value{def: d, isDef: true})
			}
		}
		return out
	default:
		return nil
	}
}
