package callgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/callgraph/internal/config"
	"github.com/viant/callgraph/importresolver"
	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/pass1"
	"github.com/viant/callgraph/pass2"
)

func newStore(t *testing.T, files map[string]string) *pass1.Store {
	t.Helper()
	cfg := config.Default()
	resolver := importresolver.NewResolver(cfg.BuiltinModules)
	s := pass1.NewStore(cfg, resolver)
	s.ReadFile = func(_ context.Context, path string) []byte { return []byte(files[path]) }
	s.ResolveModule = func(string) (string, bool) { return "", false }
	return s
}

func analyze(t *testing.T, files map[string]string, entry, absPath string) *CallGraph {
	t.Helper()
	s := newStore(t, files)
	require.NoError(t, s.Preprocess(context.Background(), entry, absPath))
	_, err := pass2.Run(context.Background(), s)
	require.NoError(t, err)
	g, err := Run(context.Background(), s)
	require.NoError(t, err)
	return g
}

func TestRun_DirectCallEmitsEdge(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "def g():\n    pass\n\ndef f():\n    g()\n",
	}, "mod", "/pkg/mod.py")

	assert.Contains(t, g.Get()["mod.f"], "mod.g")
}

func TestRun_ClassInstantiationRoutesToInit(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "class C:\n    def __init__(self):\n        pass\n\ndef f():\n    C()\n",
	}, "mod", "/pkg/mod.py")

	assert.Contains(t, g.Get()["mod.f"], "mod.C.__init__")
}

func TestRun_MethodCallOnClassBodyAttributesToEnclosingModule(t *testing.T) {
	// A call made directly in a class body (outside any method) attributes
	// to the nearest enclosing function, or the module itself when none
	// encloses it -- current_method, not current_ns.
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "def helper():\n    pass\n\nclass C:\n    helper()\n",
	}, "mod", "/pkg/mod.py")

	assert.Contains(t, g.Get()["mod"], "mod.helper")
	assert.NotContains(t, g.Get(), "mod.C")
}

func TestRun_FunctionNodeMetadataRecordsDeclaredSignature(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "def f(a, b):\n    pass\n",
	}, "mod", "/pkg/mod.py")

	meta, ok := g.MetaIfPresent("mod.f")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, meta.ArgNames)
	assert.Equal(t, 2, meta.ArgCount)
	assert.Equal(t, "mod", meta.Module)
}

func TestRun_MethodNodeMetadataIncludesReceiver(t *testing.T) {
	// Unlike pass1's bound-and-dropped formal list, the emitter reports the
	// literal declared signature, receiver included.
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "class C:\n    def m(self, x):\n        pass\n",
	}, "mod", "/pkg/mod.py")

	meta, ok := g.MetaIfPresent("mod.C.m")
	require.True(t, ok)
	assert.Equal(t, []string{"self", "x"}, meta.ArgNames)
}

func TestRun_ConditionalAndExprCountsOnlyInsideFunctions(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "if True:\n    pass\n\ndef f():\n    if True:\n        pass\n    1\n",
	}, "mod", "/pkg/mod.py")

	meta, ok := g.MetaIfPresent("mod.f")
	require.True(t, ok)
	assert.Equal(t, 1, meta.IfCount)
	assert.Equal(t, 1, meta.ExprCount)

	modMeta, ok := g.MetaIfPresent("mod")
	if ok {
		assert.Equal(t, 0, modMeta.IfCount)
	}
}

func TestRun_ForLoopEmitsIterAndNextEdges(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "class It:\n    def __iter__(self):\n        pass\n    def __next__(self):\n        pass\n\ndef f(xs):\n    pass\n\ndef g():\n    it = It()\n    for x in it:\n        pass\n",
	}, "mod", "/pkg/mod.py")

	assert.Contains(t, g.Get()["mod.g"], "mod.It.__iter__")
	assert.Contains(t, g.Get()["mod.g"], "mod.It.__next__")
}

func TestRun_EntrypointDetection(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "import atheris\n\ndef fuzz_target(data):\n    pass\n\natheris.Setup(None, fuzz_target)\n",
	}, "mod", "/pkg/mod.py")

	var found bool
	for _, ep := range g.Entrypoints {
		if ep.Name == "fuzz_target" && ep.Module == "mod" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_UnresolvedAttributeCallFallsBackToExternalEdge(t *testing.T) {
	// undefined_thing is never bound in any scope, so retrieveCallNames
	// comes back empty and the fail-safe attribute-chain path fires.
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "def f():\n    undefined_thing.do_something()\n",
	}, "mod", "/pkg/mod.py")

	dsts := g.Get()["mod.f"]
	_, sawExternal := dsts["undefined_thing.do_something"]
	assert.True(t, sawExternal)
}

func TestRun_RaiseRecordsMetadataAndEdge(t *testing.T) {
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "class MyError(Exception):\n    def __init__(self):\n        pass\n\ndef f():\n    raise MyError()\n",
	}, "mod", "/pkg/mod.py")

	meta, ok := g.MetaIfPresent("mod.f")
	require.True(t, ok)
	assert.Contains(t, meta.Raises, "MyError")
	assert.Contains(t, g.Get()["mod.f"], "mod.MyError.__init__")
}

func TestAddEdge_RejectsEmptyNodeName(t *testing.T) {
	g := New()
	err := g.AddEdge("", "mod.f", 1, "mod", "")
	assert.Error(t, err)
}

func TestAddNode_BackfillsModuleNameOnce(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("mod.f", ""))
	require.NoError(t, g.AddNode("mod.f", "mod"))
	assert.Equal(t, "mod", g.ModuleOf("mod.f"))
}

func TestNodes_ContainsEveryRegisteredNamespace(t *testing.T) {
	g := New()
	require.NoError(t, g.AddEdge("mod.f", "mod.g", 3, "mod", ""))
	assert.ElementsMatch(t, []string{"mod.f", "mod.g"}, g.Nodes())

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, [2]string{"mod.f", "mod.g"}, edges[0])
}

func TestAddEntrypoint_AppendsRawIdentifierText(t *testing.T) {
	g := New()
	g.AddEntrypoint("fuzz_target", "mod")
	require.Len(t, g.Entrypoints, 1)
	assert.Equal(t, EntryPoint{Name: "fuzz_target", Module: "mod"}, g.Entrypoints[0])
}

func TestRun_InheritedMethodCallResolvesThroughMRO(t *testing.T) {
	// spec scenario 2: class A: def m(self): pass / class B(A): pass / a
	// call B().m() resolves to a.A.m -- B never declares m itself, so the
	// edge only exists if method lookup walks B's MRO back to A.
	g := analyze(t, map[string]string{
		"/pkg/a.py": "class A:\n    def m(self):\n        pass\n\nclass B(A):\n    pass\n\ndef f():\n    B().m()\n",
	}, "a", "/pkg/a.py")

	assert.Contains(t, g.Get()["a.f"], "a.A.m")
}

func TestRun_DecoratedCallRoutesThroughWrapperAndBackToOriginal(t *testing.T) {
	// spec scenario 3: def dec(f): def wrap(*a): return f(*a); return wrap
	// and @dec def h(): pass. A call to h() must emit an edge to dec's
	// wrapped return (h's effective identity as a decorated callable), and
	// wrap's own call to f(*a) must thread back to h, not loop back into
	// the decorator chain itself.
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "def dec(f):\n    def wrap(*a):\n        return f(*a)\n    return wrap\n\n@dec\ndef h():\n    pass\n\ndef caller():\n    h()\n",
	}, "mod", "/pkg/mod.py")

	assert.Contains(t, g.Get()["mod.caller"], "mod.dec.wrap")
	assert.Contains(t, g.Get()["mod.dec.wrap"], "mod.h")
}

func TestRun_DictLiteralSubscriptCallResolvesToStoredFunction(t *testing.T) {
	// spec scenario 4: x = {"k": f}; x["k"]() resolves to f via the
	// literal-keyed container Definition <dict0>.k.
	g := analyze(t, map[string]string{
		"/pkg/mod.py": "def f():\n    pass\n\nx = {\"k\": f}\n\ndef caller():\n    x[\"k\"]()\n",
	}, "mod", "/pkg/mod.py")

	assert.Contains(t, g.Get()["mod.caller"], "mod.f")
}

func TestRun_ReturnNamespaceUsesReturnConstant(t *testing.T) {
	// sanity check that the emitter's return-namespace joins agree with the
	// shared ns package constant rather than a hardcoded literal.
	assert.Equal(t, "mod.f.<return>", ns.Join("mod.f", ns.ReturnName))
}
