package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openai"
	APIKeyPathEnvVar  = "OPENAI_API_KEY_FILE"
	EnvFileEnvVar     = "SELECT_EXPLAIN_ENV"

	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
)

// defaultExcludedWindows is applied when EXCLUDED_WINDOWS is not configured.
// Password managers and fullscreen games are poor places to hijack selections.
var defaultExcludedWindows = []string{
	"Password", "KeePass", "LastPass", "1Password",
	"GameBar", "Steam", "Battle.net", "Epic Games",
	"League of Legends", "Dota", "Counter-Strike",
}

type LoadOptions struct {
	APIKeyPathOverride string
}

type Config struct {
	APIKey     string
	APIKeyPath string
	BaseURL    string
	Model      string

	TimeoutSec  int
	MaxTokens   int
	Temperature float64

	EnableCache  bool
	CacheMaxSize int

	EnablePrivacyFilter bool
	ExcludedWindows     []string

	DragThresholdPx   int
	DebounceInterval  float64
	SelectionDelaySec float64

	EnableFileLogging bool
	LogDir            string
	LogMaxSizeMB      int
	LogBackupCount    int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use SELECT_EXPLAIN_ENV env var as a path to a config file
	// Real environment variables win over .env values.
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		APIKey:     resolveAPIKey(apiKeyPath),
		APIKeyPath: apiKeyPath,
		BaseURL:    strings.TrimRight(getEnvWithDefault("OPENAI_BASE_URL", DefaultBaseURL), "/"),
		Model:      getEnvWithDefault("AI_MODEL", DefaultModel),

		TimeoutSec:  getEnvInt("AI_TIMEOUT", 30),
		MaxTokens:   getEnvInt("AI_MAX_TOKENS", 500),
		Temperature: getEnvFloat("AI_TEMPERATURE", 0.7),

		EnableCache:  getEnvBool("ENABLE_CACHE", true),
		CacheMaxSize: getEnvInt("CACHE_MAX_SIZE", 50),

		EnablePrivacyFilter: getEnvBool("ENABLE_PRIVACY_FILTER", true),
		ExcludedWindows:     parseExcludedWindows(os.Getenv("EXCLUDED_WINDOWS")),

		DragThresholdPx:   getEnvInt("DRAG_THRESHOLD", 5),
		DebounceInterval:  getEnvFloat("DEBOUNCE_INTERVAL", 0.5),
		SelectionDelaySec: getEnvFloat("SELECTION_DELAY", 0.05),

		EnableFileLogging: getEnvBool("ENABLE_FILE_LOGGING", false),
		LogDir:            os.Getenv("LOG_DIR"),
		LogMaxSizeMB:      getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogBackupCount:    getEnvInt("LOG_BACKUP_COUNT", 5),
	}

	return cfg, nil
}

// Validate checks every configured value against its allowed range.
// The first violation is returned as a descriptive error; main is expected
// to print it and exit non-zero.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required. Set it in your .env file or point %s at a key file (checked: %s)", APIKeyPathEnvVar, c.APIKeyPath)
	}
	if len(c.APIKey) < 10 {
		return fmt.Errorf("OPENAI_API_KEY seems too short (%d chars). Please check your configuration", len(c.APIKey))
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("OPENAI_BASE_URL must be an absolute http:// or https:// URL, got %q", c.BaseURL)
	}
	if c.Model == "" {
		return fmt.Errorf("AI_MODEL must not be empty")
	}
	if c.TimeoutSec < 5 || c.TimeoutSec > 120 {
		return fmt.Errorf("AI_TIMEOUT must be between 5 and 120 seconds, got %d", c.TimeoutSec)
	}
	if c.MaxTokens < 100 || c.MaxTokens > 2000 {
		return fmt.Errorf("AI_MAX_TOKENS must be between 100 and 2000, got %d", c.MaxTokens)
	}
	if c.Temperature < 0.0 || c.Temperature > 1.0 {
		return fmt.Errorf("AI_TEMPERATURE must be between 0.0 and 1.0, got %g", c.Temperature)
	}
	if c.CacheMaxSize < 10 || c.CacheMaxSize > 500 {
		return fmt.Errorf("CACHE_MAX_SIZE must be between 10 and 500, got %d", c.CacheMaxSize)
	}
	if c.DragThresholdPx < 2 || c.DragThresholdPx > 50 {
		return fmt.Errorf("DRAG_THRESHOLD must be between 2 and 50 pixels, got %d", c.DragThresholdPx)
	}
	if c.DebounceInterval < 0.1 || c.DebounceInterval > 2.0 {
		return fmt.Errorf("DEBOUNCE_INTERVAL must be between 0.1 and 2.0 seconds, got %g", c.DebounceInterval)
	}
	if c.SelectionDelaySec < 0.01 || c.SelectionDelaySec > 0.5 {
		return fmt.Errorf("SELECTION_DELAY must be between 0.01 and 0.5 seconds, got %g", c.SelectionDelaySec)
	}
	if c.LogMaxSizeMB < 1 || c.LogMaxSizeMB > 100 {
		return fmt.Errorf("LOG_MAX_SIZE_MB must be between 1 and 100, got %d", c.LogMaxSizeMB)
	}
	if c.LogBackupCount < 1 || c.LogBackupCount > 20 {
		return fmt.Errorf("LOG_BACKUP_COUNT must be between 1 and 20, got %d", c.LogBackupCount)
	}
	return nil
}

// ResolveLogDir returns the effective log directory, defaulting under the
// user home when LOG_DIR is unset.
func (c *Config) ResolveLogDir() string {
	if c.LogDir != "" {
		return c.LogDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "logs")
	}
	return filepath.Join(home, ".select-explain", "logs")
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("OPENAI_API_KEY")
}

func parseExcludedWindows(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		out := make([]string, len(defaultExcludedWindows))
		copy(out, defaultExcludedWindows)
		return out
	}
	var windows []string
	for _, w := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(w); trimmed != "" {
			windows = append(windows, trimmed)
		}
	}
	return windows
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true"
	}
	return defaultValue
}
