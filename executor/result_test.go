package executor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResultOrdering(t *testing.T) {
	r := NewResult()
	r.Set("z", 1)
	r.Set("a", 2)
	r.Set("m", 3)
	require.Equal(t, []string{"z", "a", "m"}, r.Keys())
	require.Equal(t, 3, r.Len())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":2,"m":3}`, string(out))
}

func TestResultOverwriteKeepsPosition(t *testing.T) {
	r := NewResult()
	r.Set("a", 1)
	r.Set("b", 2)
	r.Set("a", 3)
	require.Equal(t, []string{"a", "b"}, r.Keys())
	v, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestResultMapCopy(t *testing.T) {
	r := NewResult()
	r.Set("a", 1)
	m := r.Map()
	m["a"] = 99
	v, _ := r.Get("a")
	require.Equal(t, 1, v)
}
