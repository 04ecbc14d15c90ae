package kvfile

import "os"

const (
	DefaultPerm    os.FileMode = 0644
	DefaultDirPerm os.FileMode = 0755
	DefaultIndent              = "    "
)

// Options configure a Store. A nil *Options or zero fields mean defaults.
type Options struct {
	// relative paths given to Open() are resolved against BaseDir.
	// Defaults to the directory of the running executable (not the
	// current working directory).
	BaseDir string
	// permissions of the backing file, DefaultPerm if 0
	Perm os.FileMode
	// permissions of directories created for the backing file,
	// DefaultDirPerm if 0
	DirPerm os.FileMode
	// indentation of the backing file, DefaultIndent if empty
	Indent string
}

func (o *Options) withDefaults() Options {
	var res Options
	if o != nil {
		res = *o
	}
	if res.Perm == 0 {
		res.Perm = DefaultPerm
	}
	if res.DirPerm == 0 {
		res.DirPerm = DefaultDirPerm
	}
	if res.Indent == "" {
		res.Indent = DefaultIndent
	}
	return res
}
