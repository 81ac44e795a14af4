package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
hostname: node-a
port: 9001
log_file_path: /var/log/gaiakv/node-a.log
store_dir: /var/lib/gaiakv/node-a
nservers: 2
stripe_method: mod
servers:
  0:
    hostname: node-a
    port: 9001
  1:
    hostname: node-b
    port: 9002
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hostname != "node-a" {
		t.Errorf("Hostname = %q, want node-a", cfg.Hostname)
	}
	if cfg.Addr() != "node-a:9001" {
		t.Errorf("Addr() = %q, want node-a:9001", cfg.Addr())
	}
	addr, err := cfg.ServerAddr(1)
	if err != nil {
		t.Fatalf("ServerAddr(1): %v", err)
	}
	if addr != "node-b:9002" {
		t.Errorf("ServerAddr(1) = %q, want node-b:9002", addr)
	}
	if _, err := cfg.ServerAddr(5); err == nil {
		t.Error("ServerAddr(5) should error for an unlisted server")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should error")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	path := writeConfig(t, `
hostname: node-a
port: 0
store_dir: /var/lib/gaiakv
`)
	if _, err := Load(path); err == nil {
		t.Error("Load should reject port 0")
	}
}

func TestValidateRejectsMismatchedServerCount(t *testing.T) {
	path := writeConfig(t, `
hostname: node-a
port: 9001
store_dir: /var/lib/gaiakv
nservers: 2
servers:
  0:
    hostname: node-a
    port: 9001
`)
	if _, err := Load(path); err == nil {
		t.Error("Load should reject nservers not matching len(servers)")
	}
}

func TestStripeServer(t *testing.T) {
	cfg := &Config{Nservers: 4, StripeMethod: "mod"}
	if got := cfg.StripeServer(10); got != 2 {
		t.Errorf("StripeServer(10) mod 4 = %d, want 2", got)
	}

	rng := &Config{Nservers: 4, StripeMethod: "range", StripeParm: 100}
	if got := rng.StripeServer(250); got != 2 {
		t.Errorf("StripeServer(250) range/100 mod 4 = %d, want 2", got)
	}

	empty := &Config{}
	if got := empty.StripeServer(42); got != 0 {
		t.Errorf("StripeServer with Nservers=0 = %d, want 0", got)
	}
}
