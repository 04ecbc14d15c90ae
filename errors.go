package kvfile

import "errors"

var (
	// ErrInvalidArgument is returned when a required argument is missing,
	// e.g. Open() with an empty path.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidKey is returned by keyed operations when the key is empty.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInitialization is returned by every operation on a Store whose
	// backing file exists but could not be read or parsed.
	ErrInitialization = errors.New("initialization failed")
	// ErrPersistence is returned when writing the backing file failed after
	// the change was applied in memory.
	ErrPersistence = errors.New("write failed")
	// ErrInvalidData is returned by bulk imports and Set() when the data
	// can't be serialized or doesn't have the expected shape.
	ErrInvalidData = errors.New("invalid data")
)
