package canonicalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_SortsKeysRecursively(t *testing.T) {
	input := map[string]any{
		"z": map[string]any{"y": "foo", "x": "bar"},
		"a": 1,
	}
	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	b, err := JCS(map[string]string{"html": "<b> & </b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b> & </b>"}`, string(b))
}

func TestJCS_StructTagsAndOrder(t *testing.T) {
	type receipt struct {
		Reward  uint64 `json:"reward"`
		Account string `json:"account"`
	}
	b, err := JCS(receipt{Reward: 100, Account: "alice"})
	require.NoError(t, err)
	assert.Equal(t, `{"account":"alice","reward":100}`, string(b))
}

func TestContentHash_StableAcrossMapOrder(t *testing.T) {
	a, err := ContentHash(map[string]int{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := ContentHash(map[string]int{"y": 2, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sha256:"))
	assert.Len(t, a, len("sha256:")+64)
}

func TestJCS_RejectsUnmarshalable(t *testing.T) {
	_, err := JCS(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
