package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir string, fc FileConfig) string {
	t.Helper()

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	path := filepath.Join(dir, "arena.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), FileConfig{
		SchemaVersion:     "1.2.0",
		EagerRegionCommit: true,
		WarmupRegions:     2,
		WarmupConcurrency: 4,
	})

	fc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !fc.EagerRegionCommit || fc.WarmupRegions != 2 {
		t.Errorf("got %+v, want eager_region_commit=true warmup_regions=2", fc)
	}
}

func TestLoadRejectsUnsupportedSchema(t *testing.T) {
	path := writeConfig(t, t.TempDir(), FileConfig{SchemaVersion: "2.0.0"})

	if _, err := Load(path); err == nil {
		t.Error("expected schema_version 2.0.0 to be rejected by SupportedSchema")
	}
}

func TestLoadRejectsNegativeWarmup(t *testing.T) {
	path := writeConfig(t, t.TempDir(), FileConfig{SchemaVersion: "1.0.0", WarmupRegions: -1})

	if _, err := Load(path); err == nil {
		t.Error("expected negative warmup_regions to be rejected")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, FileConfig{SchemaVersion: "1.0.0", WarmupRegions: 1})

	w, initial, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if initial.WarmupRegions != 1 {
		t.Fatalf("initial.WarmupRegions = %d, want 1", initial.WarmupRegions)
	}

	writeConfig(t, dir, FileConfig{SchemaVersion: "1.0.0", WarmupRegions: 5})

	select {
	case fc := <-w.Updates():
		if fc.WarmupRegions != 5 {
			t.Errorf("got WarmupRegions=%d, want 5", fc.WarmupRegions)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload after write")
	}
}
