package kvfile

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

const csvHeader = "key,value"

// formatCSVValue stringifies a value for ToCSV()
func formatCSVValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", v)
	}
	// sequences, mappings and structs as compact JSON
	d, err := marshalJSON(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(d)
}

// formatFloat formats like JavaScript does: 1 => "1", 2.5 => "2.5"
// and exponent notation only for very large numbers
func formatFloat(f float64, bitSize int) string {
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, bitSize)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

// ToCSV returns the table as two-column text:
//
//	key,value
//	x,1
//	y,two
//
// Values are stringified and nothing is quoted so a value with a comma
// or a newline won't survive FromCSV(). There's no trailing newline.
func (s *Store) ToCSV() (string, error) {
	if err := s.wait("toCSV"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	sb.WriteString(csvHeader)
	for _, k := range s.table.keys {
		sb.WriteString("\n")
		sb.WriteString(k)
		sb.WriteString(",")
		sb.WriteString(formatCSVValue(s.table.m[k]))
	}
	return sb.String(), nil
}

// parseCSV parses text produced by ToCSV(). All values are strings.
func parseCSV(text string) (*table, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("missing header, expected 'key,value'")
	}
	header := strings.Split(lines[0], ",")
	if len(header) != 2 || header[0] != "key" || header[1] != "value" {
		return nil, fmt.Errorf("invalid header '%s', expected 'key,value'", lines[0])
	}
	t := newTable()
	for i, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("row %d: missing ',' in '%s'", i+1, line)
		}
		if key == "" {
			return nil, fmt.Errorf("row %d: empty key in '%s'", i+1, line)
		}
		if !utf8.ValidString(key) {
			return nil, fmt.Errorf("row %d: key %q is not valid UTF-8", i+1, key)
		}
		t.set(key, value)
	}
	return t, nil
}

// FromCSV replaces the whole table with rows parsed from text in
// the format of ToCSV() and rewrites the backing file. Blank lines
// are skipped, each row is split on the first comma.
func (s *Store) FromCSV(text string) error {
	if err := s.wait("fromCSV"); err != nil {
		return err
	}
	t, err := parseCSV(text)
	if err != nil {
		return fmt.Errorf("kvfile: fromCSV: %w: %w", ErrInvalidData, err)
	}
	return s.replace("fromCSV", t)
}
