package lint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/callgraph/internal/config"
	"github.com/viant/callgraph/importresolver"
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

func TestCheck_FlagsSubscriptOfKeyNeverAssignedIntoDictLiteral(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "x = {\"a\": 1}\n\ndef f():\n    y = x[\"b\"]\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))
	_, err := pass2.Run(context.Background(), s)
	require.NoError(t, err)

	findings := Check(context.Background(), s)
	require.Len(t, findings, 1)
	assert.Equal(t, "b", findings[0].Key)
	assert.Equal(t, "mod.<dict0>", findings[0].Namespace)
	assert.Equal(t, "mod", findings[0].Module)
}

func TestCheck_DoesNotFlagKeyThatWasAssigned(t *testing.T) {
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "x = {\"a\": 1}\n\ndef f():\n    y = x[\"a\"]\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))
	_, err := pass2.Run(context.Background(), s)
	require.NoError(t, err)

	findings := Check(context.Background(), s)
	assert.Empty(t, findings)
}

func TestCheck_DoesNotFlagNonDictSubscripts(t *testing.T) {
	// A list subscript (or any container not synthesized as <dictN>) is
	// out of scope for this pass; only the dict-literal shape is checked.
	s := newStore(t, map[string]string{
		"/pkg/mod.py": "x = [1, 2, 3]\n\ndef f():\n    y = x[9]\n",
	})
	require.NoError(t, s.Preprocess(context.Background(), "mod", "/pkg/mod.py"))
	_, err := pass2.Run(context.Background(), s)
	require.NoError(t, err)

	findings := Check(context.Background(), s)
	assert.Empty(t, findings)
}
