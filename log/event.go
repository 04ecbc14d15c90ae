package log

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/toon-format/toon-go"
)

// simpleTypeToStr converts simple types to string
// panics if v is of complex type
func simpleTypeToStr(v any) string {
	rt := reflect.TypeOf(v)
	kind := rt.Kind()
	switch kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("toStr: value is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// FormatEvent formats an event as a header line:
//
//	<RFC3339 time> <name>
//
// followed by vals (key, value pairs) encoded as toon and an empty line
func FormatEvent(t time.Time, name string, vals ...any) ([]byte, error) {
	n := len(vals)
	if n%2 != 0 {
		return nil, fmt.Errorf("odd number of values (%d) for event '%s'", n, name)
	}
	var sb strings.Builder
	sb.WriteString(t.UTC().Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(name)
	sb.WriteString("\n")
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			k := simpleTypeToStr(vals[i])
			m[k] = vals[i+1]
		}
		d, err := toon.Marshal(m)
		if err != nil {
			return nil, err
		}
		sb.Write(d)
		if len(d) > 0 && d[len(d)-1] != '\n' {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}

// Event records a named event with key, value pairs in the events log.
// It's a no-op if Init() wasn't called with a Dir.
func Event(name string, vals ...any) {
	mu.Lock()
	w := eventsLog
	mu.Unlock()
	if w == nil {
		return
	}
	d, err := FormatEvent(time.Now(), name, vals...)
	if IfErrf(err) {
		return
	}
	_ = w.Write(d)
}

func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}
