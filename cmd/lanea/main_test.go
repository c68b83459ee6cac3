package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExitFor(t *testing.T) {
	if err := exitFor(true); err != nil {
		t.Fatalf("exitFor(true) = %v", err)
	}
	if err := exitFor(false); err != errRefused {
		t.Fatalf("exitFor(false) = %v, want errRefused", err)
	}
}

func TestDoctorRefusesWithoutRegistry(t *testing.T) {
	flagOpsRoot = t.TempDir()
	defer func() { flagOpsRoot = "" }()

	err := doctorCmd.RunE(doctorCmd, nil)
	if err != errRefused {
		t.Fatalf("doctor on empty ops root = %v, want errRefused", err)
	}
}

func TestDoctorPassesWithCoverage(t *testing.T) {
	ops := t.TempDir()
	flagOpsRoot = ops
	defer func() { flagOpsRoot = "" }()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(ops, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("config/REPOS.json", `{"base_dir": "repos", "repos": {"repo-a": {"path": "repo-a", "active_branch": "main", "team_id": "t", "kind": "service", "status": "active", "commands": {"cwd": ".", "package_manager": "npm", "install": "", "lint": "", "test": "", "build": ""}}}}`)
	write("knowledge/evidence/index/repos/repo-a/repo_index.json", `{"scanned_at": "2026-01-01T00:00:00Z", "head_sha": "abc"}`)
	write("knowledge/ssot/repos/repo-a/scan.json", `{"repo_id": "repo-a", "scanned_at": "2026-01-01T00:00:00Z"}`)
	write("knowledge/evidence/repos/repo-a/evidence_refs.jsonl", "")

	if err := doctorCmd.RunE(doctorCmd, nil); err != nil {
		t.Fatalf("doctor with full coverage = %v", err)
	}
}
