package kvfile

import (
	"fmt"
	"maps"

	"github.com/toon-format/toon-go"
	"gopkg.in/yaml.v3"
)

// ToYAML returns the table as a YAML mapping with keys in table order
func (s *Store) ToYAML() ([]byte, error) {
	if err := s.wait("toYAML"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range s.table.keys {
		var kn, vn yaml.Node
		if err := kn.Encode(k); err != nil {
			return nil, fmt.Errorf("kvfile: toYAML: %w: %w", ErrInvalidData, err)
		}
		if err := vn.Encode(s.table.m[k]); err != nil {
			return nil, fmt.Errorf("kvfile: toYAML: value of '%s': %w: %w", k, ErrInvalidData, err)
		}
		doc.Content = append(doc.Content, &kn, &vn)
	}
	d, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("kvfile: toYAML: %w: %w", ErrInvalidData, err)
	}
	return d, nil
}

func parseYAML(d []byte) (*table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(d, &doc); err != nil {
		return nil, err
	}
	t := newTable()
	node := &doc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return t, nil
		}
		node = node.Content[0]
	}
	if node.Kind == 0 {
		// empty input
		return t, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a YAML mapping at line %d", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return nil, err
		}
		if key == "" {
			return nil, fmt.Errorf("empty key at line %d", node.Content[i].Line)
		}
		var v any
		if err := node.Content[i+1].Decode(&v); err != nil {
			return nil, err
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("value of '%s' at line %d: %w", key, node.Content[i+1].Line, err)
		}
		t.set(key, nv)
	}
	return t, nil
}

// FromYAML replaces the whole table with a YAML mapping in d and
// rewrites the backing file. Values are converted to what they'd be
// after a JSON round trip (numbers become float64).
func (s *Store) FromYAML(d []byte) error {
	if err := s.wait("fromYAML"); err != nil {
		return err
	}
	t, err := parseYAML(d)
	if err != nil {
		return fmt.Errorf("kvfile: fromYAML: %w: %w", ErrInvalidData, err)
	}
	return s.replace("fromYAML", t)
}

// ToTOON returns the table encoded as TOON (Token-Oriented Object Notation),
// a compact format for feeding data to LLMs. Key order is not preserved.
func (s *Store) ToTOON() ([]byte, error) {
	if err := s.wait("toTOON"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	m := maps.Clone(s.table.m)
	s.mu.Unlock()

	d, err := toon.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("kvfile: toTOON: %w: %w", ErrInvalidData, err)
	}
	return d, nil
}
