package fsio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c.json")

	if err := WriteFileAtomic(path, []byte("{}")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("content = %q, want {}", data)
	}
}

func TestWriteFileAtomicLeavesNoTempfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	for i := 0; i < 3; i++ {
		if err := WriteFileAtomic(path, []byte("x")); err != nil {
			t.Fatalf("WriteFileAtomic: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.json" {
		t.Fatalf("dir entries = %v, want only out.json", entries)
	}
}

func TestWriteJSONAtomicTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.json")
	if err := WriteJSONAtomic(path, map[string]int{"n": 1}); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatalf("missing trailing newline: %q", data)
	}
}

func TestAppendJSONLineAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	type rec struct {
		N int `json:"n"`
	}
	for i := 1; i <= 3; i++ {
		if err := AppendJSONLine(path, rec{N: i}); err != nil {
			t.Fatalf("AppendJSONLine: %v", err)
		}
	}

	got, err := ReadJSONLines[rec](path)
	if err != nil {
		t.Fatalf("ReadJSONLines: %v", err)
	}
	if len(got) != 3 || got[0].N != 1 || got[2].N != 3 {
		t.Fatalf("lines = %#v", got)
	}
}

func TestReadJSONLinesMissingFile(t *testing.T) {
	got, err := ReadJSONLines[struct{}](filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestReadJSONLinesMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"n\":1}\nnot-json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadJSONLines[map[string]int](path)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v, want line 2 parse error", err)
	}
}
