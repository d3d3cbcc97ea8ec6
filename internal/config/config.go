package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "QFORIA"

// Paths records which config files fed the merged configuration.
type Paths struct {
	Default string
	Global  string
	Project string
}

var (
	currentConfig *viper.Viper
	currentPaths  Paths
)

// builtinDefaults apply when no default.yaml is found next to the binary.
var builtinDefaults = map[string]interface{}{
	"defaults.mode":      "simple",
	"defaults.backend":   "gemini",
	"defaults.format":    "table",
	"defaults.session":   "default",
	"gemini.model":       "gemini-2.5-flash",
	"gemini.temperature": 1.0,
	"claude.model":       "claude-sonnet-4-5",
	"claude.max_tokens":  8192,
	"parse.strategy":     "greedy",
	"logging.level":      "warn",
	"server.host":        "127.0.0.1",
	"server.port":        8080,
}

// LoadConfig merges configuration in priority order:
// built-in -> default.yaml -> global -> project (highest). Environment
// variables override all of them.
func LoadConfig(projectDir string) (Paths, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range builtinDefaults {
		v.SetDefault(key, value)
	}

	paths := Paths{
		Default: defaultConfigPath(),
		Global:  globalConfigPath(),
		Project: projectConfigPath(projectDir),
	}

	for i, path := range []string{paths.Default, paths.Global, paths.Project} {
		if !fileExists(path) {
			continue
		}
		v.SetConfigFile(path)
		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return paths, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	currentConfig = v
	currentPaths = paths
	return paths, nil
}

// CurrentPaths returns the files used by the last LoadConfig call.
func CurrentPaths() Paths {
	return currentPaths
}

// GetConfig returns a config value as a string with env overrides applied.
func GetConfig(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	for _, envKey := range legacyEnvOverrides()[key] {
		if value, found := os.LookupEnv(envKey); found && value != "" {
			return value, true
		}
	}

	if currentConfig == nil {
		if value, found := os.LookupEnv(envName(key)); found {
			return value, true
		}
		return "", false
	}

	if !currentConfig.IsSet(key) {
		return "", false
	}

	return valueToString(currentConfig.Get(key)), true
}

// GetString returns the value of key, or fallback when it is unset or blank.
func GetString(key, fallback string) string {
	value, ok := GetConfig(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func GetInt(key string, fallback int) int {
	value, ok := GetConfig(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func GetFloat(key string, fallback float64) float64 {
	value, ok := GetConfig(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// APIKey resolves the credential stored under credentialKey (for example
// gemini.api_key). An explicit value wins over configuration.
func APIKey(credentialKey, explicit string) string {
	if key := strings.TrimSpace(explicit); key != "" {
		return key
	}
	return GetString(credentialKey, "")
}

// SetConfig writes a configuration value to the global config file.
func SetConfig(key, value string) error {
	if key == "" {
		return errors.New("config key is required")
	}

	globalPath := globalConfigPath()
	if globalPath == "" {
		return errors.New("global config path is not available")
	}

	if err := os.MkdirAll(filepath.Dir(globalPath), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(globalPath)
	if fileExists(globalPath) {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read global config: %w", err)
		}
	}

	v.Set(key, value)
	if err := v.WriteConfigAs(globalPath); err != nil {
		return fmt.Errorf("write global config: %w", err)
	}
	// The global file may hold API keys.
	if err := os.Chmod(globalPath, 0o600); err != nil {
		return fmt.Errorf("chmod global config: %w", err)
	}

	if currentConfig != nil {
		currentConfig.Set(key, value)
	}

	return nil
}

// ListConfig returns a flattened view of the current configuration.
func ListConfig() (map[string]string, error) {
	if currentConfig == nil {
		return nil, errors.New("config not loaded")
	}

	flattened := map[string]string{}
	flattenSettings("", currentConfig.AllSettings(), flattened)
	return flattened, nil
}

// SortedKeys returns the keys of settings in lexical order.
func SortedKeys(settings map[string]string) []string {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Redact masks secret values so they can be printed.
func Redact(key, value string) string {
	if value == "" || !IsSecret(key) {
		return value
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "…" + value[len(value)-4:]
}

func IsSecret(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "api_key") || strings.HasSuffix(lower, "token")
}

func defaultConfigPath() string {
	if path, ok := os.LookupEnv("QFORIA_DEFAULT_CONFIG"); ok && path != "" {
		return path
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config", "default.yaml"),
			filepath.Join(exeDir, "..", "config", "default.yaml"),
		)
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "config", "default.yaml"))
	}
	if dir := configDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "default.yaml"))
	}

	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func globalConfigPath() string {
	if path, ok := os.LookupEnv("QFORIA_GLOBAL_CONFIG"); ok && path != "" {
		return path
	}

	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

func projectConfigPath(projectDir string) string {
	if projectDir == "" {
		return ""
	}

	info, err := os.Stat(projectDir)
	if err != nil || !info.IsDir() {
		return ""
	}

	name := os.Getenv("QFORIA_PROJECT_CONFIG_NAME")
	if name == "" {
		name = ".qforia.yaml"
	}
	return filepath.Join(projectDir, name)
}

// Dir is the per-user qforia directory (config, state, logs).
func Dir() string {
	return configDir()
}

func configDir() string {
	if path, ok := os.LookupEnv("QFORIA_CONFIG_DIR"); ok && path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "qforia")
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// legacyEnvOverrides lists provider-standard variables consulted before any
// config file, in order.
func legacyEnvOverrides() map[string][]string {
	return map[string][]string{
		"gemini.api_key": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"claude.api_key": {"ANTHROPIC_API_KEY"},
		"defaults.mode":  {"QFORIA_MODE"},
	}
}

func valueToString(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(typed, ",")
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(value)
	}
}

func flattenSettings(prefix string, value interface{}, out map[string]string) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, item := range typed {
			flattenSettings(joinKey(prefix, key), item, out)
		}
	case map[interface{}]interface{}:
		for key, item := range typed {
			flattenSettings(joinKey(prefix, fmt.Sprint(key)), item, out)
		}
	default:
		if prefix == "" {
			return
		}
		out[prefix] = valueToString(value)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
