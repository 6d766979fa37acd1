// Package manifest holds the durable record of what a deployment produced:
// an ordered mapping from logical component name to deployed address.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Manifest maps logical names to addresses and remembers insertion order.
// The zero value is not usable; call New.
type Manifest struct {
	keys   []string
	values map[string]string
	// partial is set on manifests assembled by a failed run.
	partial bool
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{values: make(map[string]string)}
}

// Set records an address for name. An existing name keeps its position.
func (m *Manifest) Set(name, address string) {
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = address
}

// SetAddress records a checksummed address for name.
func (m *Manifest) SetAddress(name string, addr common.Address) {
	m.Set(name, addr.Hex())
}

// Get returns the raw value recorded for name.
func (m *Manifest) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[name]
	return v, ok
}

// Address returns the recorded address for name. Values that are not valid
// hex addresses are reported as absent.
func (m *Manifest) Address(name string) (common.Address, bool) {
	v, ok := m.Get(name)
	if !ok || !common.IsHexAddress(v) {
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// Keys returns the names in insertion order.
func (m *Manifest) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Merge copies every entry of other into m. Entries already present keep
// their position and take other's value; new entries are appended in
// other's order.
func (m *Manifest) Merge(other *Manifest) {
	for _, k := range other.Keys() {
		m.Set(k, other.values[k])
	}
}

// Clone returns an independent copy.
func (m *Manifest) Clone() *Manifest {
	c := New()
	c.Merge(m)
	if m != nil {
		c.partial = m.partial
	}
	return c
}

// MarkPartial flags m as the output of a run that did not finish. Entries of
// a partial manifest are bound but may not be initialized.
func (m *Manifest) MarkPartial() {
	m.partial = true
}

// Partial reports whether m was marked with MarkPartial. Manifests read from
// a store are never partial.
func (m *Manifest) Partial() bool {
	return m != nil && m.partial
}

// Equal reports whether both manifests hold the same entries in the same
// order.
func (m *Manifest) Equal(other *Manifest) bool {
	if m.Len() != other.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if other.keys[i] != k || other.values[k] != m.values[k] {
			return false
		}
	}
	return true
}

// Map returns the entries as a plain map.
func (m *Manifest) Map() map[string]string {
	out := make(map[string]string, m.Len())
	for _, k := range m.Keys() {
		out[k] = m.values[k]
	}
	return out
}

// MarshalJSON encodes the manifest as a JSON object in insertion order.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return m.encode("")
}

// MarshalIndent encodes the manifest the way the store writes it.
func (m *Manifest) MarshalIndent() ([]byte, error) {
	return m.encode("  ")
}

func (m *Manifest) encode(indent string) ([]byte, error) {
	if m.Len() == 0 {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if indent != "" {
			buf.WriteByte('\n')
			buf.WriteString(indent)
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if indent != "" {
			buf.WriteByte(' ')
		}
		buf.Write(val)
	}
	if indent != "" {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object of string values, keeping the
// order keys appear in.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest must be a JSON object")
	}

	out := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		if key == "" {
			return fmt.Errorf("manifest contains an empty name")
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("value of %q: %w", key, err)
		}
		out.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err == nil {
		return fmt.Errorf("unexpected data after manifest object")
	}

	*m = *out
	return nil
}
