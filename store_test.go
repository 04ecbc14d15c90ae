package kvfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, name string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", name), nil)
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	return s
}

func reopen(t *testing.T, s *Store) *Store {
	t.Helper()
	s2, err := Open(s.Path(), nil)
	require.NoError(t, err)
	require.NoError(t, s2.Wait())
	return s2
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	d, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(d)
}

func TestOpenEmptyPath(t *testing.T) {
	s, err := Open("", nil)
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "db.json")
	s, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, Ready, s.State())

	m, err := s.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, m)

	// parent directories and a valid, empty file exist after the first operation
	d := readFile(t, path)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(d), &got))
	assert.Empty(t, got)
}

func TestOpenRelativePath(t *testing.T) {
	base := t.TempDir()
	s, err := Open(filepath.Join("sub", "db.json"), &Options{BaseDir: base})
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	assert.Equal(t, filepath.Join(base, "sub", "db.json"), s.Path())
	assert.FileExists(t, s.Path())
}

func TestOpenDefaultBaseDir(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)

	name := fmt.Sprintf("kvfile-test-%d.json", os.Getpid())
	s, err := Open(name, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(s.Path()) })
	require.NoError(t, s.Wait())
	assert.Equal(t, filepath.Join(filepath.Dir(exe), name), s.Path())
}

func TestScenario(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Set("b", 2))
	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := s.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)

	n, err = s.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSetGetRoundtrip(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	s := openTestStore(t, "db.json")
	tests := []struct {
		key string
		v   any
		exp any
	}{
		{"null", nil, nil},
		{"bool", true, true},
		{"int", 42, 42.0},
		{"float", 2.5, 2.5},
		{"string", "hello, world", "hello, world"},
		{"list", []any{1, "two", false}, []any{1.0, "two", false}},
		{"strings", []string{"a", "b"}, []any{"a", "b"}},
		{"map", map[string]any{"nested": map[string]int{"x": 1}}, map[string]any{"nested": map[string]any{"x": 1.0}}},
		{"struct", point{1, 2}, map[string]any{"x": 1.0, "y": 2.0}},
		{"<html>", "a & b", "a & b"},
	}
	for _, test := range tests {
		require.NoError(t, s.Set(test.key, test.v))
	}
	// values are the same before and after a re-load
	for _, st := range []*Store{s, reopen(t, s)} {
		for _, test := range tests {
			got, ok, err := st.Get(test.key)
			require.NoError(t, err)
			assert.True(t, ok, "key: %s", test.key)
			assert.Equal(t, test.exp, got, "key: %s", test.key)
		}
	}
}

func TestSetKeepsOwnCopy(t *testing.T) {
	s := openTestStore(t, "db.json")
	m := map[string]any{"a": 1.0}
	list := []any{"x"}
	require.NoError(t, s.Set("m", m))
	require.NoError(t, s.Set("l", list))
	m["a"] = 2.0
	m["b"] = true
	list[0] = "changed"

	v, _, err := s.Get("m")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)

	// modifying what Get and Values return doesn't change the store
	v.(map[string]any)["c"] = "c"
	vals, err := s.Values()
	require.NoError(t, err)
	vals[1].([]any)[0] = "changed"
	found, err := s.Find(nil)
	require.NoError(t, err)
	found[0].Value.(map[string]any)["d"] = "d"
	all, err := s.ToJSON()
	require.NoError(t, err)
	all["m"].(map[string]any)["e"] = "e"

	exp := map[string]any{"m": map[string]any{"a": 1.0}, "l": []any{"x"}}
	got, err := s.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, exp, got)
	got, err = reopen(t, s).ToJSON()
	require.NoError(t, err)
	assert.Equal(t, exp, got)
}

func TestModifyGetResultWhileSetting(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("m", map[string]any{"a": 1.0}))
	v, _, err := s.Get("m")
	require.NoError(t, err)
	m := v.(map[string]any)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 100 {
			m[fmt.Sprintf("k%d", i)] = i
		}
	}()
	for i := range 20 {
		require.NoError(t, s.Set("x", i))
	}
	wg.Wait()

	got, _, err := s.Get("m")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, got)
}

func TestSetOverwriteKeepsOrder(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("x", 1))
	require.NoError(t, s.Set("y", 2))
	require.NoError(t, s.Set("z", 3))
	require.NoError(t, s.Set("x", "one"))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, keys)
	vals, err := s.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{"one", 2.0, 3.0}, vals)

	keys, err = reopen(t, s).Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, keys)
}

func TestHasDelete(t *testing.T) {
	s := openTestStore(t, "db.json")
	has, err := s.Has("k")
	require.NoError(t, err)
	assert.False(t, has)

	deleted, err := s.Delete("k")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.Set("k", nil))
	has, err = s.Has("k")
	require.NoError(t, err)
	assert.True(t, has)

	deleted, err = s.Delete("k")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete("k")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.Set("k", 1))
	deleted, err = s.Delete("k")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestDeleteAbsentDoesNotWrite(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("k", 1))
	// replace the file behind the store's back, a no-op delete must not rewrite it
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"other": 2}`), 0644))
	deleted, err := s.Delete("missing")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, `{"other": 2}`, readFile(t, s.Path()))
}

func TestInvalidKey(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("k", 1))
	before := readFile(t, s.Path())

	_, _, err := s.Get("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	err = s.Set("", 2)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Has("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Delete("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	// a key that isn't valid UTF-8 would change on re-load
	err = s.Set("\xff", 3)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, _, err = s.Get("a\xc3")
	assert.ErrorIs(t, err, ErrInvalidKey)

	m, err := s.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": 1.0}, m)
	assert.Equal(t, before, readFile(t, s.Path()))
}

func TestSetUnserializable(t *testing.T) {
	s := openTestStore(t, "db.json")
	err := s.Set("ch", make(chan int))
	assert.ErrorIs(t, err, ErrInvalidData)
	has, err := s.Has("ch")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFileMatchesMemory(t *testing.T) {
	s := openTestStore(t, "db.json")
	check := func() {
		d, err := s.ExportJSON()
		require.NoError(t, err)
		assert.Equal(t, string(d), readFile(t, s.Path()))
	}
	require.NoError(t, s.Set("x", 1))
	check()
	require.NoError(t, s.Set("y", []any{1, 2}))
	check()
	_, err := s.Delete("x")
	require.NoError(t, err)
	check()
	require.NoError(t, s.DeleteAll())
	check()
}

func TestDiskFormat(t *testing.T) {
	s := openTestStore(t, "db.json")
	assert.Equal(t, "{}", readFile(t, s.Path()))

	require.NoError(t, s.Set("x", 1))
	require.NoError(t, s.Set("y", "two"))
	g := goldie.New(t)
	g.Assert(t, "db_scalars", []byte(readFile(t, s.Path())))

	s = openTestStore(t, "db.json")
	require.NoError(t, s.Set("y", []int{1, 2}))
	require.NoError(t, s.Set("m", map[string]any{"a": 1, "l": []any{[]any{}, "b"}}))
	require.NoError(t, s.Set("e", map[string]any{}))
	require.NoError(t, s.Set("l", []any{}))
	g.Assert(t, "db_nested", []byte(readFile(t, s.Path())))

	require.NoError(t, s.DeleteAll())
	assert.Equal(t, "{}", readFile(t, s.Path()))
}

func TestDeleteAll(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("x", 1))
	require.NoError(t, s.Set("y", 2))
	require.NoError(t, s.Clear())
	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	m, err := reopen(t, s).ToJSON()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestToJSONIsCopy(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("x", 1))
	m, err := s.ToJSON()
	require.NoError(t, err)
	m["y"] = 2
	delete(m, "x")
	has, err := s.Has("x")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.Has("y")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestJSONRoundtrip(t *testing.T) {
	s := openTestStore(t, "a.json")
	require.NoError(t, s.Set("x", 1.0))
	require.NoError(t, s.Set("y", map[string]any{"z": []any{"a", nil}}))
	m, err := s.ToJSON()
	require.NoError(t, err)

	s2 := openTestStore(t, "b.json")
	require.NoError(t, s2.FromJSON(m))
	m2, err := s2.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, m, m2)

	m3, err := reopen(t, s2).ToJSON()
	require.NoError(t, err)
	assert.Equal(t, m, m3)
}

func TestFromJSONDeepCopy(t *testing.T) {
	s := openTestStore(t, "db.json")
	nested := map[string]any{"a": 1.0}
	require.NoError(t, s.FromJSON(map[string]any{"n": nested, "b": true}))
	nested["a"] = 2.0

	v, _, err := s.Get("n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)

	// keys of a map come out sorted
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "n"}, keys)
}

func TestFromJSONInvalid(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("keep", 1))

	err := s.FromJSON(nil)
	assert.ErrorIs(t, err, ErrInvalidData)
	err = s.FromJSON(map[string]any{"f": func() {}})
	assert.ErrorIs(t, err, ErrInvalidData)
	err = s.FromJSON(map[string]any{"": 1})
	assert.ErrorIs(t, err, ErrInvalidData)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, keys)
}

func TestImportJSONKeepsOrder(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.ImportJSON([]byte(`{"z": 1, "a": {"b": [1, 2]}, "m": null}`)))
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, keys)

	for _, bad := range []string{``, `[]`, `null`, `{"a": 1`, `{"a": 1} {}`, `{"": 1}`} {
		err = s.ImportJSON([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidData, "input: %s", bad)
	}
	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFind(t *testing.T) {
	s := openTestStore(t, "db.json")
	require.NoError(t, s.Set("a", 1.0))
	require.NoError(t, s.Set("b", 2.0))
	require.NoError(t, s.Set("c", 3.0))

	all, err := s.Find(nil)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"a", 1.0}, {"b", 2.0}, {"c", 3.0}}, all)

	odd, err := s.Find(func(key string, value any) bool {
		return int(value.(float64))%2 == 1
	})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"a", 1.0}, {"c", 3.0}}, odd)

	none, err := s.Find(func(string, any) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestKeysValuesCorrespond(t *testing.T) {
	s := openTestStore(t, "db.json")
	for i := range 20 {
		require.NoError(t, s.Set(fmt.Sprintf("k%d", i), float64(i)))
	}
	for i := 0; i < 20; i += 3 {
		_, err := s.Delete(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}
	keys, err := s.Keys()
	require.NoError(t, err)
	vals, err := s.Values()
	require.NoError(t, err)
	n, err := s.Size()
	require.NoError(t, err)
	require.Len(t, keys, n)
	require.Len(t, vals, n)
	for i, k := range keys {
		assert.Equal(t, "k"+fmt.Sprint(vals[i]), k)
	}
}

func TestInitializationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	s, err := Open(path, nil)
	require.NoError(t, err)
	err = s.Wait()
	require.ErrorIs(t, err, ErrInitialization)
	assert.Equal(t, Failed, s.State())

	_, _, err = s.Get("a")
	assert.ErrorIs(t, err, ErrInitialization)
	err = s.Set("a", 1)
	assert.ErrorIs(t, err, ErrInitialization)
	// key validation happens after the wait
	_, err = s.Has("")
	assert.ErrorIs(t, err, ErrInitialization)
	_, err = s.Delete("a")
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, s.DeleteAll(), ErrInitialization)
	_, err = s.Size()
	assert.ErrorIs(t, err, ErrInitialization)
	_, err = s.Keys()
	assert.ErrorIs(t, err, ErrInitialization)
	_, err = s.ToCSV()
	assert.ErrorIs(t, err, ErrInitialization)
	_, err = s.Find(nil)
	assert.ErrorIs(t, err, ErrInitialization)

	// the file is left alone
	assert.Equal(t, "not json", readFile(t, path))
}

func TestInitializationErrorNotObject(t *testing.T) {
	for _, content := range []string{"", "[1, 2]", "null", "42", `{"a": 1} trailing`} {
		path := filepath.Join(t.TempDir(), "db.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		s, err := Open(path, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Wait(), ErrInitialization, "content: %q", content)
	}
}

func TestInitializationErrorPathIsDir(t *testing.T) {
	path := t.TempDir()
	s, err := Open(path, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Wait(), ErrInitialization)
}

func TestPersistenceError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Open(filepath.Join(dir, "db.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Set("a", 1))

	// make the directory unusable: replace it with a file
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0644))

	err = s.Set("b", 2)
	require.ErrorIs(t, err, ErrPersistence)
	assert.True(t, strings.HasPrefix(err.Error(), "kvfile: set: "))

	// memory and disk diverged, memory has the change
	v, ok, err := s.Get("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	assert.ErrorIs(t, s.DeleteAll(), ErrPersistence)
}

func TestConcurrentWaitAndSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	s, err := Open(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Set(fmt.Sprintf("k%d", i), i)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	// last completed write has everything
	n, err = reopen(t, s).Size()
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestErrorKinds(t *testing.T) {
	kinds := []error{ErrInvalidArgument, ErrInvalidKey, ErrInitialization, ErrPersistence, ErrInvalidData}
	for i, a := range kinds {
		for j, b := range kinds {
			assert.Equal(t, i == j, errors.Is(a, b))
		}
	}
}
