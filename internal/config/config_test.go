package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("QFORIA_CONFIG_DIR", tempDir)
	t.Setenv("QFORIA_DEFAULT_CONFIG", filepath.Join(tempDir, "missing-default.yaml"))
	t.Setenv("QFORIA_GLOBAL_CONFIG", filepath.Join(tempDir, "missing-global.yaml"))
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "QFORIA_MODE"} {
		t.Setenv(key, "")
	}
	return tempDir
}

func TestLoadConfigMergeAndOverrides(t *testing.T) {
	tempDir := isolate(t)
	defaultPath := filepath.Join(tempDir, "default.yaml")
	globalPath := filepath.Join(tempDir, "global.yaml")
	projectDir := filepath.Join(tempDir, "project")
	projectPath := filepath.Join(projectDir, ".qforia.yaml")

	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}

	writeFile(t, defaultPath, "defaults:\n  mode: simple\n  backend: claude\nlogging:\n  level: info\n")
	writeFile(t, globalPath, "defaults:\n  mode: complex\nlogging:\n  level: warn\n")
	writeFile(t, projectPath, "defaults:\n  format: csv\n")

	t.Setenv("QFORIA_DEFAULT_CONFIG", defaultPath)
	t.Setenv("QFORIA_GLOBAL_CONFIG", globalPath)
	t.Setenv("QFORIA_PROJECT_CONFIG_NAME", ".qforia.yaml")

	paths, err := LoadConfig(projectDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if paths.Project != projectPath {
		t.Fatalf("expected project path %q, got %q", projectPath, paths.Project)
	}

	if value, ok := GetConfig("defaults.mode"); !ok || value != "complex" {
		t.Fatalf("expected mode complex, got %q", value)
	}
	if value, ok := GetConfig("defaults.backend"); !ok || value != "claude" {
		t.Fatalf("expected backend claude, got %q", value)
	}
	if value, ok := GetConfig("defaults.format"); !ok || value != "csv" {
		t.Fatalf("expected format csv, got %q", value)
	}
	if value, ok := GetConfig("logging.level"); !ok || value != "warn" {
		t.Fatalf("expected logging.level warn, got %q", value)
	}

	t.Setenv("QFORIA_DEFAULTS_MODE", "simple")
	if value, ok := GetConfig("defaults.mode"); !ok || value != "simple" {
		t.Fatalf("expected env override simple, got %q", value)
	}

	t.Setenv("QFORIA_MODE", "complex")
	if value, ok := GetConfig("defaults.mode"); !ok || value != "complex" {
		t.Fatalf("expected legacy override complex, got %q", value)
	}
}

func TestLoadConfigBuiltinDefaults(t *testing.T) {
	isolate(t)

	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("load config: %v", err)
	}

	if value := GetString("defaults.backend", ""); value != "gemini" {
		t.Fatalf("expected default backend gemini, got %q", value)
	}
	if value := GetInt("claude.max_tokens", 0); value != 8192 {
		t.Fatalf("expected max_tokens 8192, got %d", value)
	}
	if value := GetFloat("gemini.temperature", 0); value != 1.0 {
		t.Fatalf("expected temperature 1.0, got %v", value)
	}
	if value := GetString("notify.webhook", "none"); value != "none" {
		t.Fatalf("expected fallback for unset key, got %q", value)
	}
}

func TestAPIKeyResolution(t *testing.T) {
	tempDir := isolate(t)
	globalPath := filepath.Join(tempDir, "global.yaml")
	writeFile(t, globalPath, "gemini:\n  api_key: from-file\n")
	t.Setenv("QFORIA_GLOBAL_CONFIG", globalPath)

	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("load config: %v", err)
	}

	if key := APIKey("gemini.api_key", ""); key != "from-file" {
		t.Fatalf("expected key from file, got %q", key)
	}

	t.Setenv("GOOGLE_API_KEY", "from-google")
	if key := APIKey("gemini.api_key", ""); key != "from-google" {
		t.Fatalf("expected GOOGLE_API_KEY, got %q", key)
	}

	t.Setenv("GEMINI_API_KEY", "from-gemini")
	if key := APIKey("gemini.api_key", ""); key != "from-gemini" {
		t.Fatalf("expected GEMINI_API_KEY to take precedence, got %q", key)
	}

	if key := APIKey("gemini.api_key", "  explicit  "); key != "explicit" {
		t.Fatalf("expected explicit key, got %q", key)
	}

	if key := APIKey("claude.api_key", ""); key != "" {
		t.Fatalf("expected no claude key, got %q", key)
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	if key := APIKey("claude.api_key", ""); key != "sk-ant" {
		t.Fatalf("expected ANTHROPIC_API_KEY, got %q", key)
	}
}

func TestSetConfigWritesGlobal(t *testing.T) {
	tempDir := isolate(t)
	globalPath := filepath.Join(tempDir, "config.yaml")
	t.Setenv("QFORIA_GLOBAL_CONFIG", globalPath)

	if err := SetConfig("defaults.backend", "claude"); err != nil {
		t.Fatalf("set config: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(globalPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read global config: %v", err)
	}

	if value := v.GetString("defaults.backend"); value != "claude" {
		t.Fatalf("expected defaults.backend claude, got %q", value)
	}

	info, err := os.Stat(globalPath)
	if err != nil {
		t.Fatalf("stat global config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestListConfigRedactsSecrets(t *testing.T) {
	tempDir := isolate(t)
	globalPath := filepath.Join(tempDir, "global.yaml")
	writeFile(t, globalPath, "gemini:\n  api_key: AIzaSyExampleKey1234\nserver:\n  token: abc\n")
	t.Setenv("QFORIA_GLOBAL_CONFIG", globalPath)

	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("load config: %v", err)
	}
	settings, err := ListConfig()
	if err != nil {
		t.Fatalf("list config: %v", err)
	}

	if got := Redact("gemini.api_key", settings["gemini.api_key"]); got != "AIza…1234" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if got := Redact("server.token", settings["server.token"]); got != "********" {
		t.Fatalf("unexpected short redaction %q", got)
	}
	if got := Redact("defaults.backend", settings["defaults.backend"]); got != "gemini" {
		t.Fatalf("non-secret should be unchanged, got %q", got)
	}

	keys := SortedKeys(settings)
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
