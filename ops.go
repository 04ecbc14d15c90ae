package kvfile

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Get returns the value of key and whether it was present
func (s *Store) Get(key string) (any, bool, error) {
	if err := s.wait("get"); err != nil {
		return nil, false, err
	}
	if err := checkKey("get", key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.table.get(key)
	return copyValue(v), ok, nil
}

// Set sets value of key and rewrites the backing file.
// value must be serializable with encoding/json. It's stored as it
// would be after a re-load of the file: numbers become float64,
// structs and typed maps become map[string]any and slices become []any.
// The Store keeps its own copy so value can be modified after Set returns.
// If the write fails, the error wraps ErrPersistence and the
// new value stays in memory.
func (s *Store) Set(key string, value any) error {
	if err := s.wait("set"); err != nil {
		return err
	}
	if err := checkKey("set", key); err != nil {
		return err
	}
	v, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("kvfile: set: value of '%s' can't be serialized: %w: %w", key, ErrInvalidData, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.set(key, v)
	return s.persistLocked("set")
}

// Has returns true if key is present
func (s *Store) Has(key string) (bool, error) {
	if err := s.wait("has"); err != nil {
		return false, err
	}
	if err := checkKey("has", key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.table.get(key)
	return ok, nil
}

// Delete removes key and rewrites the backing file. Returns false,
// without touching the file, if key wasn't present.
func (s *Store) Delete(key string) (bool, error) {
	if err := s.wait("delete"); err != nil {
		return false, err
	}
	if err := checkKey("delete", key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.table.delete(key) {
		return false, nil
	}
	return true, s.persistLocked("delete")
}

// DeleteAll removes all keys and rewrites the backing file
func (s *Store) DeleteAll() error {
	if err := s.wait("deleteAll"); err != nil {
		return err
	}
	return s.replace("deleteAll", newTable())
}

// Clear is an alias for DeleteAll()
func (s *Store) Clear() error {
	return s.DeleteAll()
}

func (s *Store) Size() (int, error) {
	if err := s.wait("size"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.len(), nil
}

// Keys returns all keys in insertion order
func (s *Store) Keys() ([]string, error) {
	if err := s.wait("keys"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.table.keys), nil
}

// Values returns all values, in the same order as Keys()
func (s *Store) Values() ([]any, error) {
	if err := s.wait("values"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := s.table.values()
	for i, v := range vals {
		vals[i] = copyValue(v)
	}
	return vals, nil
}

// Find returns entries for which pred returns true, in insertion order.
// A nil pred returns all entries.
// pred is called with the store locked so it must not call the Store.
func (s *Store) Find(pred func(key string, value any) bool) ([]Entry, error) {
	if err := s.wait("find"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []Entry{}
	for _, k := range s.table.keys {
		v := copyValue(s.table.m[k])
		if pred == nil || pred(k, v) {
			res = append(res, Entry{Key: k, Value: v})
		}
	}
	return res, nil
}

// ToJSON returns a deep copy of the table
func (s *Store) ToJSON() (map[string]any, error) {
	if err := s.wait("toJSON"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyValue(s.table.m).(map[string]any), nil
}

// FromJSON replaces the whole table with a deep copy of data
// and rewrites the backing file. Keys end up sorted.
func (s *Store) FromJSON(data map[string]any) error {
	if err := s.wait("fromJSON"); err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("kvfile: fromJSON: data is nil: %w", ErrInvalidData)
	}
	d, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("kvfile: fromJSON: %w: %w", ErrInvalidData, err)
	}
	t, err := decodeTable(d)
	if err != nil {
		return fmt.Errorf("kvfile: fromJSON: %w: %w", ErrInvalidData, err)
	}
	return s.replace("fromJSON", t)
}
