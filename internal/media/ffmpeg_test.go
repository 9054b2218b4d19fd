package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "list.txt")
	p := filepath.Join(dir, "o'neill.mp3")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeConcatList(listPath, []string{p}); err != nil {
		t.Fatalf("writeConcatList: %v", err)
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `o'\''neill.mp3`) {
		t.Fatalf("expected escaped single quote, got %q", string(data))
	}
}

func TestCopyFileSingleInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q", string(data))
	}
}

func TestAbsFloat(t *testing.T) {
	if absFloat(-1.5) != 1.5 {
		t.Fatalf("expected abs(-1.5) == 1.5")
	}
	if absFloat(2.0) != 2.0 {
		t.Fatalf("expected abs(2.0) == 2.0")
	}
}

func TestParseTracebackLines(t *testing.T) {
	stderr := "Traceback (most recent call last):\n  File \"scene.py\", line 42, in construct\n    self.play(Write(obj))\nNameError: name 'obj' is not defined\n"
	lines := ParseTracebackLines(stderr)
	if len(lines) != 1 || lines[0] != 42 {
		t.Fatalf("expected [42], got %v", lines)
	}
}

func TestLastNBytes(t *testing.T) {
	s := "0123456789"
	if got := LastNBytes(s, 4); got != "6789" {
		t.Fatalf("got %q", got)
	}
	if got := LastNBytes(s, 100); got != s {
		t.Fatalf("expected full string when n exceeds length, got %q", got)
	}
}
