package sources

import (
	"fmt"
	"strings"
)

// Info is an ordered set of attribute values produced by one adapter.
// Key order is preserved because it determines the display order of
// newly recorded attributes.
type Info struct {
	keys   []string
	values map[string]any
}

// NewInfo returns an empty info set.
func NewInfo() *Info {
	return &Info{values: make(map[string]any)}
}

// Set stores a value, appending the key on first sight.
func (i *Info) Set(key string, value any) {
	if _, ok := i.values[key]; !ok {
		i.keys = append(i.keys, key)
	}
	i.values[key] = value
}

// Get returns the raw value for a key.
func (i *Info) Get(key string) (any, bool) {
	if i == nil {
		return nil, false
	}
	v, ok := i.values[key]
	return v, ok
}

// GetString renders the value for a key as a string, empty when absent.
func (i *Info) GetString(key string) string {
	v, ok := i.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Delete removes a key while keeping the order of the rest.
func (i *Info) Delete(key string) {
	if _, ok := i.values[key]; !ok {
		return
	}
	delete(i.values, key)
	for n, k := range i.keys {
		if k == key {
			i.keys = append(i.keys[:n], i.keys[n+1:]...)
			break
		}
	}
}

// Keys lists the keys in insertion order.
func (i *Info) Keys() []string {
	if i == nil {
		return nil
	}
	out := make([]string, len(i.keys))
	copy(out, i.keys)
	return out
}

// Len reports the number of stored keys.
func (i *Info) Len() int {
	if i == nil {
		return 0
	}
	return len(i.keys)
}

// Empty reports whether the set holds nothing.
func (i *Info) Empty() bool {
	return i.Len() == 0
}

// Merge copies the other set's entries over this one, preserving this
// set's existing key positions.
func (i *Info) Merge(other *Info) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		i.Set(k, other.values[k])
	}
}

// NameValues returns the values stored under the given keys, in key
// order. With no keys given, every key with a "name" prefix counts.
func (i *Info) NameValues(keys ...string) []string {
	out := make([]string, 0, 2)
	if len(keys) == 0 {
		for _, k := range i.keys {
			if strings.HasPrefix(k, "name") {
				out = append(out, i.GetString(k))
			}
		}
		return out
	}
	for _, k := range i.keys {
		for _, want := range keys {
			if k == want {
				out = append(out, i.GetString(k))
			}
		}
	}
	return out
}

// String renders the info set for logs.
func (i *Info) String() string {
	if i.Empty() {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for n, k := range i.keys {
		if n > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, i.values[k])
	}
	b.WriteByte('}')
	return b.String()
}
