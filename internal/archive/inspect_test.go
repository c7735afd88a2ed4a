package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/types"
)

func writeZip(t *testing.T, p string, method uint16, entries map[string]string, order []string) {
	t.Helper()
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"docs/a.txt", "docs/a.txt", true},
		{"./docs//a.txt", "docs/a.txt", true},
		{"docs/../a.txt", "a.txt", true},
		{`win\style\b.txt`, "win/style/b.txt", true},
		{"../../etc/passwd", "", false},
		{"docs/../../x", "", false},
		{"/etc/passwd", "", false},
		{`C:\Windows\evil.dll`, "", false},
		{`..\evil`, "", false},
		{"..", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := SafeName(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SafeName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestListRejectsTraversalButKeepsSiblings(t *testing.T) {
	p := filepath.Join(t.TempDir(), "evil.zip")
	entries := map[string]string{
		"../../etc/passwd": "root:x:0:0",
		"/abs/path":        "abs",
		"safe/file.txt":    "hello",
		"safe/":            "",
		"top.txt":          "top",
	}
	writeZip(t, p, zip.Deflate, entries, []string{"../../etc/passwd", "safe/", "safe/file.txt", "/abs/path", "top.txt"})

	got, err := NewInspector(logging.Nop()).List(p)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].Path != "safe/file.txt" || got[0].Size != 5 || got[1].Path != "top.txt" {
		t.Fatalf("List() = %+v", got)
	}
}

func TestListCorruptArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "backup_20240101_000000.zip")
	if err := os.WriteFile(p, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewInspector(logging.Nop()).List(p); !errors.Is(err, types.ErrCorruptArchive) {
		t.Fatalf("List() error = %v, want ErrCorruptArchive", err)
	}
	if _, err := NewInspector(logging.Nop()).List(filepath.Join(t.TempDir(), "missing.zip")); !errors.Is(err, types.ErrCorruptArchive) {
		t.Fatalf("List() on missing file error = %v, want ErrCorruptArchive", err)
	}
}

func TestVerifyDetectsDamagedEntry(t *testing.T) {
	p := filepath.Join(t.TempDir(), "damaged.zip")
	writeZip(t, p, zip.Store, map[string]string{
		"good.txt": "all good here",
		"bad.txt":  "PAYLOAD-TO-DAMAGE",
	}, []string{"good.txt", "bad.txt"})

	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	data = bytes.Replace(data, []byte("PAYLOAD-TO-DAMAGE"), []byte("PAYLOAD-TO-DAMAGX"), 1)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := NewInspector(logging.Nop()).Verify(p)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if rep.OK() || len(rep.Bad) != 1 || rep.Bad[0].Path != "bad.txt" || len(rep.Entries) != 2 {
		t.Fatalf("Verify() = %+v", rep)
	}
}
