package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	bfs "github.com/raoulx24/backup-archiver/internal/fs"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/progress"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Archive is a successfully written backup archive.
type Archive struct {
	Name      string
	Path      string
	CreatedAt time.Time // run start, embedded in Name
	FileCount int
	Size      int64 // container size on disk
	Entries   []Entry
	Failed    []Failure
	Changed   []string // files modified while they were being read
}

// BuildRequest is one archive to write.
type BuildRequest struct {
	Files     []string // absolute paths, written in this order
	Roots     []string // used to compute archive-relative paths
	Dir       string   // backup directory
	StartedAt time.Time
}

// Builder writes archives.
type Builder struct {
	fs       bfs.FS
	log      logging.Logger
	progress progress.Sink
	every    int
	level    int
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithProgress sets the sink and the number of files between reports.
func WithProgress(s progress.Sink, every int) BuilderOption {
	return func(b *Builder) {
		b.progress = progress.Or(s)
		if every > 0 {
			b.every = every
		}
	}
}

// WithLevel sets the deflate level (flate.BestSpeed..flate.BestCompression).
func WithLevel(level int) BuilderOption {
	return func(b *Builder) { b.level = level }
}

// NewBuilder creates a builder. filesystem may be nil for the OS filesystem.
func NewBuilder(filesystem bfs.FS, log logging.Logger, opts ...BuilderOption) *Builder {
	if filesystem == nil {
		filesystem = bfs.New()
	}
	b := &Builder{
		fs:       filesystem,
		log:      log,
		progress: progress.Nop,
		every:    100,
		level:    flate.DefaultCompression,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build writes req.Files into a new archive in req.Dir. Files that cannot be
// read are left out and listed in Archive.Failed; only failures of the
// container itself abort the build.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*Archive, error) {
	name := FormatName(req.StartedAt)
	finalPath := filepath.Join(req.Dir, name)
	partPath := finalPath + partialSuffix

	if err := b.fs.MkdirAll(req.Dir); err != nil {
		return nil, fmt.Errorf("%w: creating backup dir: %v", types.ErrArchiveWrite, err)
	}
	if _, err := os.Lstat(finalPath); err == nil {
		return nil, fmt.Errorf("%w: archive %s already exists", types.ErrArchiveWrite, name)
	}

	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: creating archive: %v", types.ErrArchiveWrite, err)
	}
	st, err := newStage(req.Dir, b.level)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("%w: creating staging file: %v", types.ErrArchiveWrite, err)
	}
	defer st.close()

	arc := &Archive{Name: name, Path: finalPath, CreatedAt: req.StartedAt}

	abort := func(err error) (*Archive, error) {
		_ = out.Close()
		_ = os.Remove(partPath)
		return nil, err
	}

	zw := zip.NewWriter(out)
	for i, file := range req.Files {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		rel := RelPath(file, req.Roots)
		entry, changed, err := b.addFile(ctx, zw, st, file, rel)
		switch {
		case err == nil:
			arc.Entries = append(arc.Entries, entry)
			if changed {
				b.log.Warn("archive: file changed while reading", "path", file)
				arc.Changed = append(arc.Changed, file)
			}
		case errors.Is(err, errContainer):
			return abort(fmt.Errorf("%w: %v", types.ErrArchiveWrite, err))
		case ctx.Err() != nil:
			return abort(ctx.Err())
		default:
			b.log.Warn("archive: skipping file", "path", file, "error", err)
			arc.Failed = append(arc.Failed, Failure{Path: file, Err: fmt.Errorf("%w: %v", types.ErrArchiveWrite, err)})
		}

		if (i+1)%b.every == 0 {
			b.progress.Report(fmt.Sprintf("Archived %d/%d files", i+1, len(req.Files)))
		}
	}

	if len(arc.Entries) == 0 && len(req.Files) > 0 {
		return abort(fmt.Errorf("%w: none of %d files could be read", types.ErrArchiveWrite, len(req.Files)))
	}

	if err := zw.Close(); err != nil {
		return abort(fmt.Errorf("%w: finishing archive: %v", types.ErrArchiveWrite, err))
	}
	if err := out.Sync(); err != nil {
		return abort(fmt.Errorf("%w: syncing archive: %v", types.ErrArchiveWrite, err))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("%w: closing archive: %v", types.ErrArchiveWrite, err)
	}

	if err := b.fs.Rename(ctx, partPath, finalPath); err != nil {
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("%w: finalizing archive: %v", types.ErrArchiveWrite, err)
	}

	if info, err := b.fs.Stat(finalPath); err == nil {
		arc.Size = info.Size
	}
	arc.FileCount = len(arc.Entries)

	b.progress.Report(fmt.Sprintf("Created backup: %s (%d files)", name, arc.FileCount))
	b.log.Info("archive: created", "path", finalPath, "files", arc.FileCount, "failed", len(arc.Failed), "bytes", arc.Size)
	return arc, nil
}

var errContainer = errors.New("archive container write failed")

// addFile compresses file into the stage, then appends it to zw as a raw
// deflate entry. Nothing reaches zw unless the whole source was read.
func (b *Builder) addFile(ctx context.Context, zw *zip.Writer, st *stage, file, rel string) (Entry, bool, error) {
	if err := st.reset(); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", errContainer, err)
	}

	res, err := b.fs.CopyInto(ctx, file, st)
	if err != nil {
		return Entry{}, false, err
	}
	csize, err := st.finish()
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", errContainer, err)
	}

	fh := rawHeader(rel, res.Before.MTime, st.crc.Sum32(), csize, uint64(res.Bytes))
	w, err := zw.CreateRaw(fh)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", errContainer, err)
	}
	if _, err := io.Copy(w, io.NewSectionReader(st.f, 0, int64(csize))); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", errContainer, err)
	}

	return Entry{Path: rel, Size: res.Bytes, ModifiedAt: res.Before.MTime}, res.Changed, nil
}

// RelPath returns file relative to the first root containing it, slash
// separated. A file under no root is stored under its base name.
func RelPath(file string, roots []string) string {
	for _, root := range roots {
		rel, err := filepath.Rel(root, file)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			continue
		}
		return filepath.ToSlash(rel)
	}
	return filepath.Base(file)
}
