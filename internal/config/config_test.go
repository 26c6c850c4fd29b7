package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate, got %v", err)
	}
}

func TestValidateRejectsDuplicatePeerNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Peers = []PeerEntry{
		{Name: "office", Address: "10.0.0.2:24800", Position: "Right"},
		{Name: "office", Address: "10.0.0.3:24800", Position: "Left"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate peer name to fail validation")
	}
}

func TestValidateRejectsBadPosition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Peers = []PeerEntry{{Name: "office", Address: "10.0.0.2:24800", Position: "Sideways"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid position to fail validation")
	}
}

func TestValidateRejectsEmptyIdentity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Identity.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty identity name to fail validation")
	}
}

func TestManagerLoadMissingFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{configPath: filepath.Join(dir, "config.json"), config: DefaultConfig()}
	if err := m.Load(); err != nil {
		t.Fatalf("Load() on missing file: %v", err)
	}
	if m.Get().Port != DefaultPort {
		t.Fatalf("Port = %d, want default %d", m.Get().Port, DefaultPort)
	}
}

func TestManagerSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	m := &Manager{configPath: path, config: DefaultConfig()}
	m.Get().Peers = []PeerEntry{{Name: "office", Address: "10.0.0.2:24800", Position: "Right", Fingerprint: "SHA256:aa"}}

	if err := m.Save(); err != nil {
		t.Fatalf("Save(): %v", err)
	}

	m2 := &Manager{configPath: path, config: DefaultConfig()}
	if err := m2.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	got := m2.Get()
	if len(got.Peers) != 1 || got.Peers[0].Name != "office" {
		t.Fatalf("round-tripped peers = %+v", got.Peers)
	}
}
