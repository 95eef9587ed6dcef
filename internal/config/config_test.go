package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t, "CONFIG_FILE", "STORE_DRIVER", "OBJECT_STORE", "PYTHON_PATH", "UPLOAD_MAX_BYTES",
		"LIST_LIMIT", "ANALYZER_MAX_OUTPUT_BYTES", "ANALYZER_TIMEOUT_SECONDS", "UPLOAD_ALLOWED_TYPES",
		"CLDN_FOLDER", "NATS_SUBJECT", "REDIS_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != "mongo" || cfg.ObjectStore != "cloudinary" {
		t.Fatalf("unexpected drivers %q/%q", cfg.StoreDriver, cfg.ObjectStore)
	}
	if cfg.PythonPath != "python" || cfg.AnalyzerTimeoutSeconds != 0 {
		t.Fatalf("unexpected analyzer defaults %q/%d", cfg.PythonPath, cfg.AnalyzerTimeoutSeconds)
	}
	if cfg.AnalyzerMaxOutputBytes != 200*MiB || cfg.UploadMaxBytes != 10*MiB {
		t.Fatalf("unexpected byte limits %d/%d", cfg.AnalyzerMaxOutputBytes, cfg.UploadMaxBytes)
	}
	if cfg.ListLimit != 200 || cfg.UploadFolder != "cmt-pdfs" || cfg.NATSSubject != "submissions.finished" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.UploadAllowedTypes != nil || cfg.RedisURL != "" {
		t.Fatalf("unexpected upload/cache defaults %+v", cfg)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t, "CONFIG_FILE")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "application/pdf, ,text/plain")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("LIST_LIMIT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected lowercased driver, got %q", cfg.StoreDriver)
	}
	if len(cfg.UploadAllowedTypes) != 2 || cfg.UploadAllowedTypes[1] != "text/plain" {
		t.Fatalf("unexpected allowed types %v", cfg.UploadAllowedTypes)
	}
	if cfg.APIRateLimitRPS != 2.5 || !cfg.MinIOUseSSL {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.ListLimit != 200 {
		t.Fatalf("expected fallback for malformed int, got %d", cfg.ListLimit)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yamlPath := filepath.Join(dir, "plagioguard.yaml")
	yamlBody := "API_PORT: 9000\nLOG_LEVEL: debug\nOBJECT_STORE: minio\nCORS_ALLOWED_ORIGINS:\n  - https://a.example\n  - https://b.example\n"
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=warn\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	clearEnv(t, "API_PORT", "OBJECT_STORE", "CORS_ALLOWED_ORIGINS")
	t.Setenv("CONFIG_FILE", yamlPath)
	t.Setenv("API_PORT", "7000")
	// godotenv never overrides variables that already exist, so unset it.
	os.Unsetenv("LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "7000" {
		t.Fatalf("env should win over yaml, got %q", cfg.APIPort)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf(".env should win over yaml, got %q", cfg.LogLevel)
	}
	if cfg.ObjectStore != "minio" {
		t.Fatalf("yaml should win over defaults, got %q", cfg.ObjectStore)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("API_PORT: [unterminated"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
