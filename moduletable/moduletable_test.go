package moduletable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddMethod_IsIdempotent(t *testing.T) {
	m := newModule("pkg.mod", "pkg/mod.py")
	m.AddMethod("pkg.mod.f", 1, 3)
	m.AddMethod("pkg.mod.f", 100, 200)
	assert.Equal(t, LineRange{First: 1, Last: 3}, m.Methods["pkg.mod.f"])
}

func TestCreateExternal_LazyAndIdempotent(t *testing.T) {
	table := NewTable()
	first := table.CreateExternal("os")
	second := table.CreateExternal("os")
	assert.Same(t, first, second)
	_, internal, ok := table.Get("os")
	assert.True(t, ok)
	assert.False(t, internal)
}

func TestGet_PrefersInternalOverExternal(t *testing.T) {
	table := NewTable()
	table.CreateInternal("pkg.mod", "pkg/mod.py")
	mod, internal, ok := table.Get("pkg.mod")
	assert.True(t, ok)
	assert.True(t, internal)
	assert.Equal(t, "pkg.mod", mod.Name)
}
