package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Inspector lists archive contents for display and verification. Entries
// whose names would escape the archive root are never returned.
type Inspector struct {
	log logging.Logger
}

func NewInspector(log logging.Logger) *Inspector {
	return &Inspector{log: log}
}

// List returns the file entries of the archive at p, in stored order.
func (in *Inspector) List(p string) ([]Entry, error) {
	var out []Entry
	err := in.walk(p, func(name string, f *zip.File) error {
		out = append(out, Entry{
			Path:       name,
			Size:       int64(f.UncompressedSize64),
			ModifiedAt: f.Modified,
		})
		return nil
	})
	return out, err
}

// Report is the result of Verify.
type Report struct {
	Entries []Entry
	Bad     []Failure // entries whose data did not decompress or match its CRC
}

// OK reports whether every listed entry verified.
func (r Report) OK() bool { return len(r.Bad) == 0 }

// Verify lists the archive and reads every entry back, checking its CRC.
func (in *Inspector) Verify(p string) (Report, error) {
	var rep Report
	err := in.walk(p, func(name string, f *zip.File) error {
		e := Entry{Path: name, Size: int64(f.UncompressedSize64), ModifiedAt: f.Modified}
		rep.Entries = append(rep.Entries, e)

		rc, err := f.Open()
		if err != nil {
			rep.Bad = append(rep.Bad, Failure{Path: name, Err: err})
			return nil
		}
		// zip's reader checks the CRC and size once the stream hits EOF
		_, err = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			rep.Bad = append(rep.Bad, Failure{Path: name, Err: err})
		}
		return nil
	})
	return rep, err
}

func (in *Inspector) walk(p string, fn func(name string, f *zip.File) error) error {
	zr, err := zip.OpenReader(p)
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// names are checked one by one below
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrCorruptArchive, p, err)
	}
	defer zr.Close()

	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name, ok := SafeName(f.Name)
		if !ok {
			in.log.Warn("inspect: rejecting unsafe entry", "archive", p, "entry", f.Name)
			continue
		}
		if err := fn(name, f); err != nil {
			return err
		}
	}
	return nil
}

// SafeName normalizes an entry name and reports whether it stays inside the
// archive root: no absolute paths, drive letters, or parent traversal.
func SafeName(name string) (string, bool) {
	n := strings.ReplaceAll(name, `\`, "/")
	if n == "" || strings.HasPrefix(n, "/") || hasDriveLetter(n) {
		return "", false
	}
	clean := path.Clean(n)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}
	return clean, true
}

func hasDriveLetter(n string) bool {
	if len(n) < 2 || n[1] != ':' {
		return false
	}
	c := n[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
