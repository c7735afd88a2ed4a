// Package scan walks source roots and selects the files a backup run should
// archive.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"time"

	bfs "github.com/raoulx24/backup-archiver/internal/fs"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/progress"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// SymlinkPolicy controls how symbolic links found while walking are treated.
type SymlinkPolicy int

const (
	Follow SymlinkPolicy = iota
	Skip
)

// File is one selected file.
type File struct {
	Path    string // absolute
	Root    string // the source root it was found under
	RelPath string // slash separated, relative to Root
	Size    int64
	ModTime time.Time
}

// Request describes one scan.
type Request struct {
	Roots  []string
	Rules  Rules
	Mode   types.Mode
	Cutoff time.Time // zero: no previous archive, incremental behaves as full

	// Prune lists directories that are never descended into, typically the
	// backup directory when it lives under a source root.
	Prune []string
}

type Scanner struct {
	log      logging.Logger
	progress progress.Sink
	symlinks SymlinkPolicy
}

type Option func(*Scanner)

func WithProgress(s progress.Sink) Option {
	return func(sc *Scanner) { sc.progress = progress.Or(s) }
}

func WithSymlinks(p SymlinkPolicy) Option {
	return func(sc *Scanner) { sc.symlinks = p }
}

func New(log logging.Logger, opts ...Option) *Scanner {
	s := &Scanner{log: log, progress: progress.Nop, symlinks: Follow}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan lazily yields the selected files of every root, depth first, in
// lexical order within a directory. A non-nil error is a problem with a
// single entry; the walk carries on after it. Cancelling ctx ends the
// sequence with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, req Request) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		w := &walk{
			s:      s,
			ctx:    ctx,
			req:    req,
			yield:  yield,
			dirs:   map[string]bool{},
			files:  map[string]bool{},
			pruned: map[string]bool{},
			cutoff: !req.Cutoff.IsZero() && req.Mode == types.ModeIncremental,
		}
		for _, p := range req.Prune {
			if abs, err := filepath.Abs(p); err == nil {
				w.pruned[abs] = true
			}
		}

		for _, root := range req.Roots {
			s.progress.Report(fmt.Sprintf("Scanning %s...", root))
			s.log.Debug("scan: walking root", "root", root)

			st, err := os.Stat(root)
			if err != nil {
				if !w.fail(root, err) {
					return
				}
				continue
			}
			w.root = root
			if !w.dir(root, st) {
				return
			}
		}
	}
}

type walk struct {
	s      *Scanner
	ctx    context.Context
	req    Request
	yield  func(File, error) bool
	root   string
	cutoff bool

	dirs   map[string]bool // identities of visited directories
	files  map[string]bool // resolved paths of yielded files
	pruned map[string]bool
}

// dir walks one directory. It returns false once the consumer stopped or
// ctx was cancelled.
func (w *walk) dir(p string, st os.FileInfo) bool {
	if w.pruned[p] {
		return true
	}
	key := identity(p, st)
	if w.dirs[key] {
		w.s.log.Debug("scan: directory already visited", "path", p)
		return true
	}
	w.dirs[key] = true

	entries, err := os.ReadDir(p)
	if err != nil {
		return w.fail(p, err)
	}

	for _, ent := range entries {
		if err := w.ctx.Err(); err != nil {
			w.yield(File{}, err)
			return false
		}
		if !w.entry(filepath.Join(p, ent.Name()), ent) {
			return false
		}
	}
	return true
}

func (w *walk) entry(p string, ent fs.DirEntry) bool {
	mode := ent.Type()

	var st os.FileInfo
	var err error
	if mode&fs.ModeSymlink != 0 {
		if w.s.symlinks == Skip {
			return true
		}
		st, err = os.Stat(p)
	} else {
		st, err = ent.Info()
	}
	if err != nil {
		return w.fail(p, err)
	}

	switch {
	case st.IsDir():
		return w.dir(p, st)
	case !st.Mode().IsRegular():
		return true
	}

	if w.req.Rules.Excluded(p) {
		return true
	}
	if w.cutoff && !st.ModTime().After(w.req.Cutoff) {
		return true
	}

	// hard links are distinct paths and are all archived; only symlinks
	// that resolve to a yielded path are dropped
	key := resolved(p)
	if w.files[key] {
		return true
	}
	w.files[key] = true

	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		rel = filepath.Base(p)
	}
	return w.yield(File{
		Path:    p,
		Root:    w.root,
		RelPath: filepath.ToSlash(rel),
		Size:    st.Size(),
		ModTime: st.ModTime(),
	}, nil)
}

func (w *walk) fail(p string, err error) bool {
	w.s.log.Warn("scan: skipping unreadable entry", "path", p, "error", err)
	return w.yield(File{Path: p}, fmt.Errorf("%w: %s: %v", types.ErrScanIO, p, err))
}

// identity keys a directory by device and inode where the platform reports
// them, and by its resolved path elsewhere.
func identity(p string, st os.FileInfo) string {
	if id := bfs.IDOf(st); id.Known() {
		return fmt.Sprintf("%d:%d", id.Dev, id.Ino)
	}
	return resolved(p)
}

func resolved(p string) string {
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return filepath.Clean(real)
	}
	return filepath.Clean(p)
}
