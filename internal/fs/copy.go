package fs

import (
	"context"
	"io"
	"os"
)

// copy.go streams a source file into an arbitrary writer and reports whether
// the source changed while it was being read. Opening is retried on transient
// errors; the stream itself is not, since w may already hold partial data.

func copyInto(ctx context.Context, f FS, src string, w io.Writer) (CopyResult, error) {
	orig, err := f.Stat(src)
	if err != nil {
		return CopyResult{}, err
	}

	var in *os.File
	err = retry(ctx, "open", func() error {
		var openErr error
		in, openErr = os.Open(src)
		return openErr
	})
	if err != nil {
		return CopyResult{Before: orig}, err
	}
	defer in.Close()

	n, err := io.Copy(w, ctxReader{ctx: ctx, r: in})
	if err != nil {
		return CopyResult{Bytes: n, Before: orig}, err
	}

	res := CopyResult{Bytes: n, Before: orig}
	now, err := f.Stat(src)
	if err != nil {
		// vanished after a complete read; the data we have is still consistent
		res.Changed = true
		return res, nil
	}
	res.Changed = sourceChanged(orig, now) || n != orig.Size
	return res, nil
}

func sourceChanged(orig, now FileInfo) bool {
	if now.ID.Known() && orig.ID.Known() && now.ID != orig.ID {
		return true
	}
	if now.MTime.After(orig.MTime) {
		return true
	}
	if now.Size != orig.Size {
		return true
	}
	return false
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
