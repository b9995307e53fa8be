package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg")
	content := []byte("CMS_TOKEN=abc\nCMS_ENDPOINT=https://cms.example/connectors\nLOG_LEVEL=debug\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Token != "abc" || cfg.Endpoint != "https://cms.example/connectors" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Backend != BackendConnector {
		t.Fatalf("expected default backend, got %q", cfg.Backend)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CMS_TOKEN", "envtoken")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Token != "envtoken" {
		t.Fatalf("expected token from env, got %q", cfg.Token)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg")
	if err := os.WriteFile(path, []byte("CMS_BACKEND=connector\nS3_BUCKET=file-bucket\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("S3_BUCKET", "env-bucket")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.S3Bucket != "env-bucket" {
		t.Fatalf("expected env override, got %q", cfg.S3Bucket)
	}
}

func TestSaveWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg")
	cfg := Config{Token: "abc", Endpoint: "https://cms.example", Backend: BackendConnector}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	expected := "CMS_TOKEN=abc\nCMS_ENDPOINT=https://cms.example\nCMS_BACKEND=connector\n"
	if string(data) != expected {
		t.Fatalf("file content = %q, want %q", string(data), expected)
	}
}

func TestSaveRequiresToken(t *testing.T) {
	if err := Save("ignored", Config{}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSaveS3WithoutToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg")
	if err := Save(path, Config{Backend: BackendS3, S3Bucket: "assets"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
}

func TestDefaultPathUsesHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	want := filepath.Join(dir, ".cmsbrowserrc")
	if got := DefaultPath(); got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
}
