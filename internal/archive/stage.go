package archive

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
)

// stage is a reusable spill file holding one compressed entry at a time.
type stage struct {
	f   *os.File
	fw  *flate.Writer
	crc hash.Hash32
}

func newStage(dir string, level int) (*stage, error) {
	f, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return nil, err
	}
	fw, err := flate.NewWriter(f, level)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return &stage{f: f, fw: fw, crc: crc32.NewIEEE()}, nil
}

func (s *stage) reset() error {
	if err := s.f.Truncate(0); err != nil {
		return err
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.fw.Reset(s.f)
	s.crc.Reset()
	return nil
}

// Write feeds uncompressed bytes. Errors are the spill file's, so they are
// reported as container failures rather than source read failures.
func (s *stage) Write(p []byte) (int, error) {
	s.crc.Write(p)
	n, err := s.fw.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", errContainer, err)
	}
	return n, nil
}

// finish flushes the compressor and returns the compressed size.
func (s *stage) finish() (uint64, error) {
	if err := s.fw.Close(); err != nil {
		return 0, err
	}
	off, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

func (s *stage) close() {
	name := s.f.Name()
	_ = s.f.Close()
	_ = os.Remove(name)
}

// rawHeader builds the header CreateRaw needs. CreateRaw writes fields as
// given, so the MS-DOS time, the extended timestamp and the UTF-8 flag are
// filled in here the way CreateHeader would.
func rawHeader(name string, mtime time.Time, crc uint32, csize, usize uint64) *zip.FileHeader {
	fh := &zip.FileHeader{
		Name:               name,
		Method:             zip.Deflate,
		CRC32:              crc,
		CompressedSize64:   csize,
		UncompressedSize64: usize,
	}
	fh.SetMode(0o644)
	fh.CreatorVersion = fh.CreatorVersion&0xff00 | 20
	fh.ReaderVersion = 20

	if utf8.ValidString(name) && hasNonASCII(name) {
		fh.Flags |= 0x800
	}

	if !mtime.IsZero() {
		local := mtime.Local()
		fh.Modified = local
		fh.ModifiedDate, fh.ModifiedTime = msDosTime(local)

		var ext [9]byte
		binary.LittleEndian.PutUint16(ext[0:], 0x5455) // extended timestamp
		binary.LittleEndian.PutUint16(ext[2:], 5)
		ext[4] = 1 // mtime present
		binary.LittleEndian.PutUint32(ext[5:], uint32(mtime.Unix()))
		fh.Extra = append(fh.Extra, ext[:]...)
	}
	return fh
}

func msDosTime(t time.Time) (date, tm uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, t.Location())
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	tm = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, tm
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
