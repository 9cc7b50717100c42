package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "trellis dev") {
		t.Errorf("expected output to contain 'trellis dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "trellis 1.0.0") {
		t.Errorf("expected output to contain 'trellis 1.0.0', got: %s", out)
	}
	if !strings.Contains(out, "commit: abc123") {
		t.Errorf("expected output to contain 'commit: abc123', got: %s", out)
	}
}

func TestMigrateCmd_SQLite(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "trellis.yaml")
	dbPath := filepath.Join(dir, "trellis.db")
	cfg := "expert_id: expert-1\ndatabase:\n  driver: sqlite\n  path: " + dbPath + "\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	buf := new(bytes.Buffer)
	if err := runMigrate(buf, configPath); err != nil {
		t.Fatalf("runMigrate: %v", err)
	}
	if !strings.Contains(buf.String(), "Schema migrated") {
		t.Errorf("output = %q", buf.String())
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	// Idempotent.
	if err := runMigrate(buf, configPath); err != nil {
		t.Errorf("second runMigrate: %v", err)
	}
}

func TestMigrateCmd_MissingConfig(t *testing.T) {
	if err := runMigrate(new(bytes.Buffer), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing config should fail")
	}
}
