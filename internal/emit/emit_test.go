package emit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/callgraph/callgraph"
)

func TestDefault_MapsCallerToSortedCallees(t *testing.T) {
	g := callgraph.New()
	require.NoError(t, g.AddEdge("mod.f", "mod.b", 1, "mod", ""))
	require.NoError(t, g.AddEdge("mod.f", "mod.a", 2, "mod", ""))

	var buf bytes.Buffer
	require.NoError(t, Default(&buf, g))

	var out map[string][]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, []string{"mod.a", "mod.b"}, out["mod.f"])
}

func TestFasten_EncodesGraphAsURIPairs(t *testing.T) {
	g := callgraph.New()
	require.NoError(t, g.AddNode("mod.g", "mod"))
	require.NoError(t, g.AddEdge("mod.f", "mod.g", 1, "mod", ""))

	var buf bytes.Buffer
	err := Fasten(&buf, g, FastenOptions{Product: "demo", Forge: "PyPI", Version: "1.0", Timestamp: "0"})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "demo", doc["product"])
	assert.Equal(t, "PyPI", doc["forge"])
	assert.Equal(t, []any{}, doc["cha"])

	graphVal, ok := doc["graph"].([]any)
	require.True(t, ok)
	require.Len(t, graphVal, 1)
	pair := graphVal[0].([]any)
	assert.Equal(t, "fasten://demo!mod$mod.f", pair[0])
	assert.Equal(t, "fasten://demo!mod$mod.g", pair[1])
}

func TestFasten_FallsBackToBareNamespaceWhenModuleUnknown(t *testing.T) {
	g := callgraph.New()
	require.NoError(t, g.AddEdge("mod.f", "requests.get", 1, "mod", "requests"))

	var buf bytes.Buffer
	require.NoError(t, Fasten(&buf, g, FastenOptions{Product: "demo"}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	graphVal := doc["graph"].([]any)
	pair := graphVal[0].([]any)
	assert.Equal(t, "fasten://demo$requests.get", pair[1])
}
