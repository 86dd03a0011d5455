// Package emit encodes a finished call graph as JSON, in either the
// default caller-to-callees schema or the FASTEN dependency-graph schema,
// per the specification's external-interfaces contract.
package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/viant/callgraph/callgraph"
)

// Default writes the default schema: an object mapping each caller
// namespace to a sorted array of its callee namespaces.
func Default(w io.Writer, graph *callgraph.CallGraph) error {
	raw := graph.Get()
	out := make(map[string][]string, len(raw))
	for caller, callees := range raw {
		names := make([]string, 0, len(callees))
		for callee := range callees {
			names = append(names, callee)
		}
		sort.Strings(names)
		out[caller] = names
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// FastenOptions carries the package-level metadata the driver supplies via
// --product/--forge/--version/--timestamp; Depset is populated by an
// external collaborator (the package metadata reader), never by this
// package.
type FastenOptions struct {
	Product   string
	Forge     string
	Version   string
	Timestamp string
	Depset    []string
}

// fastenDoc mirrors the FASTEN output schema verbatim: product, forge,
// depset, version, timestamp, an always-empty class hierarchy, and the
// graph as [source_uri, target_uri] pairs.
type fastenDoc struct {
	Product   string     `json:"product"`
	Forge     string     `json:"forge"`
	Depset    []string   `json:"depset"`
	Version   string     `json:"version"`
	Timestamp string     `json:"timestamp"`
	Cha       []struct{} `json:"cha"`
	Graph     [][2]string `json:"graph"`
}

// Fasten writes the FASTEN schema, encoding every edge's endpoints as URIs
// that embed product, module, and in-module namespace.
func Fasten(w io.Writer, graph *callgraph.CallGraph, opts FastenOptions) error {
	edges := graph.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})

	doc := fastenDoc{
		Product:   opts.Product,
		Forge:     opts.Forge,
		Depset:    opts.Depset,
		Version:   opts.Version,
		Timestamp: opts.Timestamp,
		Cha:       []struct{}{},
	}
	for _, e := range edges {
		doc.Graph = append(doc.Graph, [2]string{
			uriFor(opts.Product, graph, e[0]),
			uriFor(opts.Product, graph, e[1]),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// uriFor builds a fasten:// URI of the form fasten://product!module$namespace,
// falling back to the bare namespace when no module is recorded for it
// (external definitions created lazily by the emitter).
func uriFor(product string, graph *callgraph.CallGraph, fullns string) string {
	module := graph.ModuleOf(fullns)
	if module == "" {
		return fmt.Sprintf("fasten://%s$%s", product, fullns)
	}
	return fmt.Sprintf("fasten://%s!%s$%s", product, module, fullns)
}
