package pass1

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/callgraph/internal/config"
	"github.com/viant/callgraph/importresolver"
	"github.com/viant/callgraph/ns"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	resolver := importresolver.NewResolver(cfg.BuiltinModules)
	return NewStore(cfg, resolver)
}

func readerFromMap(files map[string]string) func(context.Context, string) []byte {
	return func(_ context.Context, path string) []byte {
		return []byte(files[path])
	}
}

func TestPreprocess_FunctionDeclaration(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/mod.py": "def f(a, b):\n    pass\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	fnDef := s.Defs.Get("mod.f")
	require.NotNil(t, fnDef)
	assert.True(t, fnDef.IsFunctionDef())
	assert.NotNil(t, s.Defs.Get("mod.f.<return>"))

	pos, ok := fnDef.NamePointer.GetPosOfName("a")
	assert.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestPreprocess_ClassWithInheritanceLinksRawRelation(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/mod.py": "class Base:\n    pass\n\nclass Child(Base):\n    pass\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	clsDef := s.Defs.Get("mod.Child")
	require.NotNil(t, clsDef)
	assert.True(t, clsDef.IsClassDef())

	node := s.Classes.Get("mod.Child")
	require.NotNil(t, node)
	parents := s.Classes.Parents("mod.Child")
	assert.Contains(t, parents, "mod.Base")
	// MRO is not finalized during preprocess.
	assert.Equal(t, []string{"mod.Child"}, node.MRO)
}

func TestPreprocess_MethodReceiverIsBoundAndDropped(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/mod.py": "class A:\n    def m(self, x):\n        pass\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	fnDef := s.Defs.Get("mod.A.m")
	require.NotNil(t, fnDef)
	// "self" is bound+dropped, so "x" takes positional index 0.
	pos, ok := fnDef.NamePointer.GetPosOfName("x")
	assert.True(t, ok)
	assert.Equal(t, 0, pos)

	self := s.Defs.Get("mod.A.m.self")
	require.NotNil(t, self)
	assert.Contains(t, self.NamePointer.Values(), "mod.A")
}

func TestPreprocess_AssignmentSeedsLiteralAndIdentifier(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/mod.py": "x = 'hello'\ny = x\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	xDef := s.Defs.Get("mod.x")
	require.NotNil(t, xDef)
	assert.Contains(t, xDef.LiteralPointer.Values(), "'hello'")

	yDef := s.Defs.Get("mod.y")
	require.NotNil(t, yDef)
	assert.Contains(t, yDef.NamePointer.Values(), "mod.x")
}

func TestPreprocess_ImportFromRecursesIntoInternalModule(t *testing.T) {
	s := newStore(t)
	files := map[string]string{
		"/pkg/a.py": "from b import g\n",
		"/pkg/b.py": "def g():\n    pass\n",
	}
	s.ReadFile = readerFromMap(files)
	s.Imports.SetPkg("/pkg")
	index := map[string]string{"b": "/pkg/b.py"}
	s.ResolveModule = func(name string) (string, bool) {
		p, ok := index[name]
		return p, ok
	}

	require.NoError(t, s.Preprocess(context.Background(), "a", "/pkg/a.py"))

	assert.NotNil(t, s.Defs.Get("b.g"))
	aliasDef := s.Defs.Get("a.g")
	require.NotNil(t, aliasDef)
	assert.True(t, aliasDef.IsFunctionDef())
}

func TestPreprocess_UnresolvedImportFallsBackToExternal(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/a.py": "from missing import thing\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "a", "/pkg/a.py"))

	extDef := s.Defs.Get("a.thing")
	require.NotNil(t, extDef)
	assert.True(t, extDef.IsExtDef())
}

func TestPreprocess_LambdaAssignmentCreatesSyntheticFunction(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/mod.py": "f = lambda x: x\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	fDef := s.Defs.Get("mod.f")
	require.NotNil(t, fDef)
	assert.Contains(t, fDef.NamePointer.Values(), "mod.<lambda0>")

	lambdaDef := s.Defs.Get("mod.<lambda0>")
	require.NotNil(t, lambdaDef)
	assert.True(t, lambdaDef.IsFunctionDef())
}

func TestPreprocess_AlreadyAnalyzedModuleIsNoOp(t *testing.T) {
	s := newStore(t)
	calls := 0
	s.ReadFile = func(_ context.Context, path string) []byte {
		calls++
		return []byte("x = 1\n")
	}
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))
	assert.Equal(t, 1, calls)
}

func TestPreprocess_SyntaxErrorSkipsModule(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{
		"/pkg/mod.py": "def f(:\n  pass\n",
	})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))
	assert.Nil(t, s.Defs.Get("mod.f"))
}

func TestPreprocess_ModuleDefinitionAndScopeAreCreated(t *testing.T) {
	s := newStore(t)
	s.ReadFile = readerFromMap(map[string]string{"/pkg/mod.py": ""})
	s.ResolveModule = func(string) (string, bool) { return "", false }

	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	modDef := s.Defs.Get("mod")
	require.NotNil(t, modDef)
	assert.True(t, modDef.IsModuleDef())
	assert.NotNil(t, s.Scopes.GetScope("mod"))
	assert.Equal(t, ns.ModDef, modDef.DefType)
}
