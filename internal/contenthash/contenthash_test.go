package contenthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_DeterministicAndSensitiveToContent(t *testing.T) {
	h1, err := Hash([]byte("def f(): pass"))
	require.NoError(t, err)
	h2, err := Hash([]byte("def f(): pass"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := Hash([]byte("def g(): pass"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
