package ssh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKnownHostsAppend(t *testing.T) {
	dir := t.TempDir()
	kh := filepath.Join(dir, "known_hosts")

	priv := filepath.Join(dir, "id_ed25519")
	pub, err := GenerateEd25519Keypair(priv)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	if err := AppendKnownHost(kh, "node1.example.com", pub); err != nil {
		t.Fatalf("append known host: %v", err)
	}

	raw, err := os.ReadFile(kh)
	if err != nil {
		t.Fatalf("read known_hosts: %v", err)
	}
	if !strings.Contains(string(raw), "node1.example.com") {
		t.Errorf("host entry missing from known_hosts: %q", raw)
	}

	// The file must load as a strict host key callback.
	cb, err := LoadKnownHostsCallback(kh)
	if err != nil {
		t.Fatalf("load callback: %v", err)
	}
	if cb == nil {
		t.Fatal("Expected a host key callback")
	}
}

func TestEnsureKnownHostsFile(t *testing.T) {
	kh := filepath.Join(t.TempDir(), "nested", "known_hosts")
	if err := EnsureKnownHostsFile(kh); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	info, err := os.Stat(kh)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %o", info.Mode().Perm())
	}
}
