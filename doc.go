// Package kvfile is a key-value store kept in memory and mirrored to
// a single JSON file.
//
// Open() loads the whole file into memory in the background (creating
// the file with an empty table if it doesn't exist). Every operation
// waits for the load to finish. Every change rewrites the whole file
// before returning, so after a successful Set(), Delete() etc. the file
// matches the in-memory table.
//
// # Basic Usage
//
//	s, err := kvfile.Open("/var/lib/app/db.json", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err = s.Wait(); err != nil {
//	    // the file exists but is not valid JSON
//	    log.Fatal(err)
//	}
//	err = s.Set("name", "John Doe")
//	v, ok, err := s.Get("name")
//
// Relative paths are resolved against Options.BaseDir, which defaults
// to the directory of the executable, not the current directory.
//
// # File Format
//
// A JSON object with 4-space indentation, keys in insertion order:
//
//	{
//	    "name": "John Doe",
//	    "age": 30
//	}
//
// Values are anything encoding/json can marshal. After a re-load they
// are nil, bool, float64, string, []any or map[string]any.
//
// # Errors
//
// Errors wrap one of ErrInvalidArgument, ErrInvalidKey, ErrInitialization,
// ErrPersistence or ErrInvalidData; use errors.Is(). If the initial load
// fails, every operation returns the same ErrInitialization error.
// Nothing is retried.
//
// # Thread Safety
//
// The Store is safe for concurrent use. Changes are serialized: each one
// updates the table and rewrites the file under a mutex. Set() stores
// its own copy of the value and Get(), Values(), Find() and ToJSON()
// return copies, so values can be modified freely. There is no
// locking across processes.
package kvfile
