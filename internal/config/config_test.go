package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentpact.json")
	content := `{
  "web3": {
    "rpc_url": "http://127.0.0.1:8545",
    "contract": "0x0000000000000000000000000000000000000001",
    "private_key": "ab"
  }
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("unexpected storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Bounds.CacheDriver != "memory" {
		t.Fatalf("unexpected cache driver: %s", cfg.Bounds.CacheDriver)
	}
	if cfg.Notify.Driver != "memory" {
		t.Fatalf("unexpected notify driver: %s", cfg.Notify.Driver)
	}
	if cfg.Responder.Workers != 1 {
		t.Fatalf("unexpected worker count: %d", cfg.Responder.Workers)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentpact.json")
	content := `{
  "web3": {"chain_catalog": "chains.yaml"},
  "bounds": {"manifest_path": "actions.yaml"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Web3.ChainCatalog != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chain catalog not resolved: %s", cfg.Web3.ChainCatalog)
	}
	if cfg.Bounds.ManifestPath != filepath.Join(dir, "actions.yaml") {
		t.Fatalf("manifest path not resolved: %s", cfg.Bounds.ManifestPath)
	}
}

func TestLoadRejectsEmptyPathAndBadJSON(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed json")
	}
}
