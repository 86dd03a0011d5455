package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/callgraph/definition"
	"github.com/viant/callgraph/ns"
)

func TestCreateScopeIsIdempotent(t *testing.T) {
	m := NewManager()
	root := m.CreateScope("pkg.mod", nil)
	again := m.CreateScope("pkg.mod", nil)
	assert.Same(t, root, again)
}

func TestGetDef_WalksParentChain(t *testing.T) {
	m := NewManager()
	root := m.CreateScope("pkg.mod", nil)
	fn := m.CreateScope("pkg.mod.f", root)

	defs := definition.NewManager()
	d, err := defs.Create("pkg.mod.X", ns.NameDef)
	require.NoError(t, err)
	m.HandleAssign("pkg.mod", "X", d)

	got := m.GetDef("pkg.mod.f", "X")
	require.NotNil(t, got)
	assert.Equal(t, "pkg.mod.X", got.FullNS)
	_ = fn
}

func TestGetDef_MissReturnsNil(t *testing.T) {
	m := NewManager()
	m.CreateScope("pkg.mod", nil)
	assert.Nil(t, m.GetDef("pkg.mod", "missing"))
}

func TestSyntheticNameCountersResetOnReentry(t *testing.T) {
	s := newScope("pkg.mod", nil)
	assert.Equal(t, "<lambda0>", s.NextLambdaName())
	assert.Equal(t, "<lambda1>", s.NextLambdaName())
	s.ResetCounters()
	assert.Equal(t, "<lambda0>", s.NextLambdaName())
}
