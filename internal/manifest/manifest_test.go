package manifest

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_SetKeepsPosition(t *testing.T) {
	m := New()
	m.Set("B", "0x02")
	m.Set("A", "0x01")
	m.Set("B", "0x03")

	assert.Equal(t, []string{"B", "A"}, m.Keys())
	v, ok := m.Get("B")
	require.True(t, ok)
	assert.Equal(t, "0x03", v)
}

func TestManifest_Address(t *testing.T) {
	m := New()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	m.SetAddress("A", addr)
	m.Set("Broken", "not-an-address")

	got, ok := m.Address("A")
	require.True(t, ok)
	assert.Equal(t, addr, got)

	_, ok = m.Address("Broken")
	assert.False(t, ok)
	_, ok = m.Address("Missing")
	assert.False(t, ok)
}

func TestManifest_Merge(t *testing.T) {
	m := New()
	m.Set("A", "1")
	m.Set("B", "2")

	other := New()
	other.Set("C", "3")
	other.Set("A", "9")
	m.Merge(other)

	assert.Equal(t, []string{"A", "B", "C"}, m.Keys())
	assert.Equal(t, map[string]string{"A": "9", "B": "2", "C": "3"}, m.Map())
}

func TestManifest_CloneIsIndependent(t *testing.T) {
	m := New()
	m.Set("A", "1")
	c := m.Clone()
	c.Set("B", "2")

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
	assert.False(t, m.Equal(c))
}

func TestManifest_JSONOrder(t *testing.T) {
	in := []byte(`{"Zeta":"0x02","Alpha":"0x01","Mid":"0x03"}`)

	m := New()
	require.NoError(t, json.Unmarshal(in, m))
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, m.Keys())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, string(in), string(out))
}

func TestManifest_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "array", input: `["a"]`},
		{name: "number value", input: `{"A": 1}`},
		{name: "nested object", input: `{"A": {"b": "c"}}`},
		{name: "empty name", input: `{"": "0x01"}`},
		{name: "trailing data", input: `{} {}`},
		{name: "truncated", input: `{"A": "0x01"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			assert.Error(t, m.UnmarshalJSON([]byte(tc.input)))
		})
	}
}

func TestManifest_EmptyEncodesAsObject(t *testing.T) {
	out, err := New().MarshalIndent()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}
