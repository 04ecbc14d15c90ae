package kvfile

import "slices"

// table is a map that remembers insertion order of keys
type table struct {
	keys []string
	m    map[string]any
}

func newTable() *table {
	return &table{
		m: map[string]any{},
	}
}

func (t *table) get(key string) (any, bool) {
	v, ok := t.m[key]
	return v, ok
}

// set overwrites the value of an existing key in place,
// new keys go at the end
func (t *table) set(key string, v any) {
	if _, ok := t.m[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.m[key] = v
}

func (t *table) delete(key string) bool {
	if _, ok := t.m[key]; !ok {
		return false
	}
	delete(t.m, key)
	if i := slices.Index(t.keys, key); i >= 0 {
		t.keys = slices.Delete(t.keys, i, i+1)
	}
	return true
}

func (t *table) len() int {
	return len(t.keys)
}

func (t *table) values() []any {
	res := make([]any, len(t.keys))
	for i, k := range t.keys {
		res[i] = t.m[k]
	}
	return res
}
