package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalkPackage_BuildsNamespacesAndIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "mod.py"), "def f(): pass")
	writeFile(t, filepath.Join(root, "pkg", "sub", "__init__.py"), "")
	writeFile(t, filepath.Join(root, "pkg", "sub", "leaf.py"), "x = 1")

	read := func(ctx context.Context, path string) []byte {
		data, _ := os.ReadFile(path)
		return data
	}

	files, index, err := WalkPackage(context.Background(), root, ".py", "__init__.py", read)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	assert.Contains(t, index, "pkg.mod")
	assert.Contains(t, index, "pkg.sub")
	assert.Contains(t, index, "pkg.sub.leaf")

	resolve := Resolver(index)
	p, ok := resolve("pkg.mod")
	assert.True(t, ok)
	assert.Equal(t, index["pkg.mod"], p)
}

func TestWalkPackage_MarksInitializerFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "__init__.py"), "")

	files, _, err := WalkPackage(context.Background(), root, ".py", "__init__.py", func(context.Context, string) []byte { return nil })
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].IsInit)
}
