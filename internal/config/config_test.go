package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMergesProjectOverUser(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()

	mustWrite(t, UserConfigPath(userDir), "tapes_dir: /user/tapes\nerror_rate: 10\n")
	mustWrite(t, ProjectConfigPath(projectDir), "tapes_dir: ./tapes\nrecord: overwrite\n")

	m := NewManager()
	if err := m.Load(userDir, projectDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	if got.TapesDir != "./tapes" {
		t.Errorf("TapesDir = %q, want project override", got.TapesDir)
	}
	if got.Record != "overwrite" {
		t.Errorf("Record = %q, want overwrite", got.Record)
	}
	if got.ErrorRate == nil || *got.ErrorRate != 10 {
		t.Errorf("ErrorRate = %v, want 10 (from user tier)", got.ErrorRate)
	}
}

func TestLoadMissingFilesUseDefaults(t *testing.T) {
	m := NewManager()
	if err := m.Load(t.TempDir(), t.TempDir()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	if got.TapesDir != "./tapes" || got.Record != "new" || got.Fallback != "not_found" {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

func TestLatencyUnmarshalScalarAndRange(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "c.yaml"), "latency: 50\n")
	var c Config
	if err := loadYAML(filepath.Join(dir, "c.yaml"), &c); err != nil {
		t.Fatal(err)
	}
	if c.Latency == nil || c.Latency.Const != 50 || c.Latency.HasRange {
		t.Errorf("got %+v, want Const=50", c.Latency)
	}

	mustWrite(t, filepath.Join(dir, "r.yaml"), "latency: [10, 200]\n")
	var c2 Config
	if err := loadYAML(filepath.Join(dir, "r.yaml"), &c2); err != nil {
		t.Fatal(err)
	}
	if c2.Latency == nil || !c2.Latency.HasRange || c2.Latency.Min != 10 || c2.Latency.Max != 200 {
		t.Errorf("got %+v, want range [10,200]", c2.Latency)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
