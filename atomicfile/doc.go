/*
Package atomicfile writes files so that readers see either the old
content or the complete new content, never a partial write.

Writing a file robustly means:

- handle error returned by `Write()`

- handle error returned by `Close()`

- remove the partially written temp file if anything failed

kvfile rewrites its whole backing file on every mutation and relies on
this package for it:

	func save(path string, data []byte) error {
		return atomicfile.WriteFile(path, data, 0644)
	}

For streaming writes:

	f, err := atomicfile.New(path)
	if err != nil {
		return err
	}
	// no-op once Close() was called
	defer f.RemoveIfNotClosed()

	if _, err = io.Copy(f, r); err != nil {
		return err
	}
	return f.Close()
*/
package atomicfile
