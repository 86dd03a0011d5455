package pass2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/callgraph/internal/config"
	"github.com/viant/callgraph/importresolver"
	"github.com/viant/callgraph/ns"
	"github.com/viant/callgraph/pass1"
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

func TestRun_ClassMROFinalizedAfterPostprocess(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "class Base:\n    pass\n\nclass Child(Base):\n    pass\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	node := s.Classes.Get("mod.Child")
	require.NotNil(t, node)
	assert.Equal(t, []string{"mod.Child"}, node.MRO)

	_, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []string{"mod.Child", "mod.Base"}, node.MRO)
}

func TestRun_CallResolvesAndBindsArgument(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "def g(x):\n    pass\n\ndef f():\n    g(1)\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	_, err := Run(context.Background(), s)
	require.NoError(t, err)

	gDef := s.Defs.Get("mod.g")
	require.NotNil(t, gDef)
	xDef := s.Defs.Get("mod.g.x")
	require.NotNil(t, xDef)
	assert.Contains(t, xDef.LiteralPointer.Values(), "1")
}

func TestRun_ReturnFeedsReturnPointer(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "def f():\n    return 'hi'\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	_, err := Run(context.Background(), s)
	require.NoError(t, err)

	retDef := s.Defs.Get(ns.Join("mod.f", ns.ReturnName))
	require.NotNil(t, retDef)
	assert.Contains(t, retDef.LiteralPointer.Values(), "hi")
}

func TestRun_ChainedCallResolvesThroughPreviousReturn(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "def inner():\n    pass\n\ndef outer():\n    return inner\n\ndef f():\n    outer()()\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	p, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestRun_ThreadDecoratorsRecordsIdentityWithoutMutatingOwnPointer(t *testing.T) {
	// spec §8 scenario 3's groundwork: decorating h with dec records dec's
	// wrapped return as h's effective identity in DecoratorNames (consumed
	// only at the callgraph emitter's call-resolution site), and threads
	// h itself into dec's own parameter (f) via ordinary argument binding.
	// h's own NamePointer must NOT be mutated -- doing so would make every
	// reference to h (including dec.f's own binding, set up by this very
	// pass) chase back through the decorator chain instead of landing on
	// h, turning wrap's own call to f(*a) into a self-loop.
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "def dec(f):\n    def wrap(*a):\n        return f(*a)\n    return wrap\n\n@dec\ndef h():\n    pass\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	_, err := Run(context.Background(), s)
	require.NoError(t, err)

	hDef := s.Defs.Get("mod.h")
	require.NotNil(t, hDef)
	assert.Contains(t, hDef.DecoratorNames, ns.Join("mod.dec", ns.ReturnName))
	assert.Empty(t, hDef.NamePointer.Values())

	argDef := s.Defs.Get("mod.dec.f")
	require.NotNil(t, argDef)
	assert.Contains(t, argDef.NamePointer.Values(), "mod.h")
}

func TestRun_EntrypointDetection(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "import atheris\n\ndef fuzz_target(data):\n    pass\n\natheris.Setup(None, fuzz_target)\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))

	p, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, p.Entrypoints, "fuzz_target")
}
