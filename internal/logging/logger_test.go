package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	Get(CategoryStaleness).Info("should not appear")

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("logs written while disabled: %v", entries)
	}
}

func TestCategoryFileAndLevel(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: true, Level: "info"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	l := Get(CategoryCommittee)
	l.Debug("dropped by level")
	l.Info("kept: %d", 42)
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "committee.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Fatalf("debug line written at info level: %s", data)
	}
	if !strings.Contains(string(data), "kept: 42") {
		t.Fatalf("info line missing: %s", data)
	}
}

func TestCategoryToggleOff(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(dir, Options{
		DebugMode:  true,
		Categories: map[string]bool{"git": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	if l := Get(CategoryGit); l != nil {
		t.Fatalf("git category should be disabled")
	}
	if l := Get(CategoryMeeting); l == nil {
		t.Fatalf("meeting category should be enabled")
	}
}

func TestJSONFormat(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: true, JSONFormat: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Close()

	Get(CategoryGate).Warn("refused")
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "gate.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"lvl":"warn"`) || !strings.Contains(string(data), `"msg":"refused"`) {
		t.Fatalf("unexpected JSON line: %s", data)
	}
}
