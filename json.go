package kvfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
)

// marshalJSON is json.Marshal without escaping of <, > and &
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// encodeTable serializes t as a JSON object with keys in table order,
// pretty-printed with indent
func encodeTable(t *table, indent string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kd, err := marshalJSON(k)
		if err != nil {
			return nil, err
		}
		vd, err := marshalJSON(t.m[k])
		if err != nil {
			return nil, fmt.Errorf("value of '%s': %w", k, err)
		}
		buf.Write(kd)
		buf.WriteByte(':')
		buf.Write(vd)
	}
	buf.WriteByte('}')
	// Width 0 puts every array element on its own line and
	// keeps [] and {} compact, like JSON.stringify(v, null, 4)
	opts := &pretty.Options{
		Width:    0,
		Indent:   indent,
		SortKeys: false,
	}
	d := pretty.PrettyOptions(buf.Bytes(), opts)
	return bytes.TrimSuffix(d, []byte{'\n'}), nil
}

// decodeTable parses a JSON object keeping the order of keys.
// Numbers are decoded as float64.
func decodeTable(d []byte) (*table, error) {
	dec := json.NewDecoder(bytes.NewReader(d))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}
	t := newTable()
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a key, got %v", tok)
		}
		if key == "" {
			return nil, errors.New("empty key")
		}
		var v any
		if err = dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("value of '%s': %w", key, err)
		}
		t.set(key, v)
	}
	// closing '}'
	if _, err = dec.Token(); err != nil {
		return nil, err
	}
	if tok, err = dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected data after JSON object: %v", tok)
		}
		return nil, err
	}
	return t, nil
}

// normalizeValue converts v to what it would be after a write
// and a re-load of the backing file
func normalizeValue(v any) (any, error) {
	d, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var res any
	if err = json.Unmarshal(d, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// copyValue deep-copies a value produced by normalizeValue or decodeTable.
// Stored values are never handed out so callers can't mutate them
// behind the lock.
func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = copyValue(e)
		}
		return m
	case []any:
		a := make([]any, len(x))
		for i, e := range x {
			a[i] = copyValue(e)
		}
		return a
	}
	return v
}

// ExportJSON returns the table serialized exactly as it's written
// to the backing file
func (s *Store) ExportJSON() ([]byte, error) {
	if err := s.wait("exportJSON"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := encodeTable(s.table, s.opts.Indent)
	if err != nil {
		return nil, fmt.Errorf("kvfile: exportJSON: %w: %w", ErrInvalidData, err)
	}
	return d, nil
}

// ImportJSON replaces the whole table with a JSON object in d,
// keeping the order of its keys, and rewrites the backing file
func (s *Store) ImportJSON(d []byte) error {
	if err := s.wait("importJSON"); err != nil {
		return err
	}
	t, err := decodeTable(d)
	if err != nil {
		return fmt.Errorf("kvfile: importJSON: %w: %w", ErrInvalidData, err)
	}
	return s.replace("importJSON", t)
}
