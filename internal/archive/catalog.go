// Package archive writes, lists and inspects backup archives.
//
// An archive is a zip file named backup_<YYYYMMDD_HHMMSS>.zip. The name is
// the only index: archives are ordered by the timestamp embedded in it, and
// filesystem mtime is consulted only when a name cannot be parsed.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bfs "github.com/raoulx24/backup-archiver/internal/fs"
)

const (
	Prefix     = "backup_"
	Ext        = ".zip"
	TimeLayout = "20060102_150405"

	partialSuffix = ".partial"
)

// Info is an archive found in the backup directory.
type Info struct {
	Name      string
	Path      string
	Timestamp time.Time
	Size      int64
	Parsed    bool // Timestamp came from the name, not from mtime
}

// FormatName returns the canonical archive name for a run started at t.
func FormatName(t time.Time) string {
	return Prefix + t.Local().Format(TimeLayout) + Ext
}

// ParseName extracts the embedded timestamp from an archive name.
func ParseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, Prefix) || !strings.HasSuffix(name, Ext) {
		return time.Time{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, Prefix), Ext)
	t, err := time.ParseInLocation(TimeLayout, core, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsArchiveName reports whether name looks like an archive, parseable or not.
func IsArchiveName(name string) bool {
	return strings.HasPrefix(name, Prefix) && strings.HasSuffix(name, Ext)
}

// List returns the archives in dir, oldest first. A missing dir is empty.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup dir: %w", err)
	}

	var out []Info
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !IsArchiveName(name) {
			continue
		}

		info := Info{Name: name, Path: filepath.Join(dir, name)}
		st, statErr := ent.Info()
		if statErr == nil {
			info.Size = st.Size()
		}

		if ts, ok := ParseName(name); ok {
			info.Timestamp = ts
			info.Parsed = true
		} else if statErr == nil {
			info.Timestamp = st.ModTime()
		} else {
			continue
		}
		out = append(out, info)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Name < out[j].Name
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Latest returns the newest archive in dir.
func Latest(dir string) (Info, bool, error) {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return Info{}, false, err
	}
	return all[len(all)-1], true, nil
}

// Cutoff is the reference time for an incremental run: the embedded
// timestamp of the newest archive. ok is false when there is none.
func Cutoff(dir string) (time.Time, bool, error) {
	latest, ok, err := Latest(dir)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return latest.Timestamp, true, nil
}

// Resolve maps a user supplied archive name to a path inside dir, refusing
// anything that is not a plain archive file name.
func Resolve(dir, name string) (string, error) {
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || !IsArchiveName(name) {
		return "", fmt.Errorf("%q is not an archive name", name)
	}
	return filepath.Join(dir, name), nil
}

// Delete removes one archive by name. Callers hold the instance guard.
func Delete(ctx context.Context, f bfs.FS, dir, name string) error {
	p, err := Resolve(dir, name)
	if err != nil {
		return err
	}
	if _, err := f.Stat(p); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return f.Remove(ctx, p)
}
