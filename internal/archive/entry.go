package archive

import (
	"time"
)

// Entry describes a single file stored in an archive.
type Entry struct {
	Path       string // slash separated, relative to the archive root
	Size       int64  // original (uncompressed) size
	ModifiedAt time.Time
}

// Failure records a file that could not be added to an archive.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) String() string { return f.Path + ": " + f.Err.Error() }
