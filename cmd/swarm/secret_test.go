package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"agent-swarm/internal/infra/config"
)

func TestConfigEncrypt(t *testing.T) {
	t.Setenv(config.PassphraseEnv, "swarm-key")
	cfg := filepath.Join(t.TempDir(), "absent.yaml")

	out, err := runCLI(t, cfg, "config", "encrypt", "redis://:pw@cache:6379/0")
	if err != nil {
		t.Fatalf("config encrypt: %v", err)
	}
	sealed := strings.TrimSpace(out)
	if !strings.HasPrefix(sealed, config.SecretPrefix) {
		t.Fatalf("output = %q, want %q prefix", sealed, config.SecretPrefix)
	}
	got, err := config.OpenSecret(sealed, "swarm-key")
	if err != nil {
		t.Fatalf("OpenSecret: %v", err)
	}
	if got != "redis://:pw@cache:6379/0" {
		t.Errorf("unsealed = %q", got)
	}
}

func TestConfigEncryptFromStdin(t *testing.T) {
	t.Setenv(config.PassphraseEnv, "swarm-key")

	c := &cli{}
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("redis://stdin:6379\n"))
	root.SetArgs([]string{"config", "encrypt"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config encrypt: %v", err)
	}

	got, err := config.OpenSecret(strings.TrimSpace(out.String()), "swarm-key")
	if err != nil {
		t.Fatalf("OpenSecret: %v", err)
	}
	if got != "redis://stdin:6379" {
		t.Errorf("unsealed = %q", got)
	}
}

func TestConfigEncryptRequiresPassphrase(t *testing.T) {
	t.Setenv(config.PassphraseEnv, "")
	cfg := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := runCLI(t, cfg, "config", "encrypt", "x"); err == nil {
		t.Fatal("expected error without passphrase")
	}
}
