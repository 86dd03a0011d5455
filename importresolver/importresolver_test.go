package importresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleImportLevel_PlainPackage(t *testing.T) {
	r := NewResolver(nil)
	restore := r.SetCurrentMod("pkg.sub.mod", "pkg/sub/mod.py")
	defer restore()

	modName, pkg, err := r.HandleImportLevel("x", 1)
	require.NoError(t, err)
	assert.Equal(t, ".x", modName)
	assert.Equal(t, "pkg.sub", pkg)
}

func TestHandleImportLevel_InitFileOffByOne(t *testing.T) {
	r := NewResolver(nil)
	restore := r.SetCurrentMod("pkg.sub", "pkg/sub/__init__.py")
	defer restore()

	// level 1 from an __init__.py means "this same package" -- no extra
	// component gets stripped beyond the dot-prefix itself.
	modName, pkg, err := r.HandleImportLevel("x", 1)
	require.NoError(t, err)
	assert.Equal(t, ".x", modName)
	assert.Equal(t, "pkg.sub", pkg)
}

func TestHandleImportLevel_BeyondTopLevelFails(t *testing.T) {
	r := NewResolver(nil)
	restore := r.SetCurrentMod("pkg", "pkg/mod.py")
	defer restore()

	_, _, err := r.HandleImportLevel("x", 5)
	assert.Error(t, err)
}

func TestHandleImport_BuiltinShortCircuits(t *testing.T) {
	r := NewResolver(map[string]struct{}{"sys": {}})
	_, _ = r.CreateNode("pkg.mod")
	restore := r.SetCurrentMod("pkg.mod", "pkg/mod.py")
	defer restore()

	got := r.HandleImport("sys", 0, func(string) (string, bool) { return "", false })
	assert.Equal(t, "", got)
	assert.Contains(t, r.GetImports("pkg.mod"), "sys")
}

func TestHandleImport_ResolvesViaFirstMatchingCombo(t *testing.T) {
	r := NewResolver(nil)
	r.SetPkg("/root/pkg")
	_, _ = r.CreateNode("pkg.mod")
	restore := r.SetCurrentMod("pkg.mod", "/root/pkg/mod.py")
	defer restore()

	got := r.HandleImport("sibling", 0, func(name string) (string, bool) {
		if name == "sibling" {
			return "/root/pkg/sibling.py", true
		}
		return "", false
	})
	assert.Equal(t, "sibling", got)
}

func TestHandleImport_UnresolvedDegradesToEmpty(t *testing.T) {
	r := NewResolver(nil)
	r.SetPkg("/root/pkg")
	_, _ = r.CreateNode("pkg.mod")
	restore := r.SetCurrentMod("pkg.mod", "/root/pkg/mod.py")
	defer restore()

	got := r.HandleImport("nope", 0, func(string) (string, bool) { return "", false })
	assert.Equal(t, "", got)
}

func TestWithRoot_RestoresOnDefer(t *testing.T) {
	r := NewResolver(nil)
	r.SetPkg("/orig")
	func() {
		restore := r.WithRoot("/scoped")
		defer restore()
		assert.Equal(t, "/scoped", r.PkgDir())
	}()
	assert.Equal(t, "/orig", r.PkgDir())
}
