// Package config loads and validates the QuantIA configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for QuantIA.
type Config struct {
	General GeneralConfig `json:"general"`
	OpenAI  OpenAIConfig  `json:"openai"`
	Index   IndexConfig   `json:"index"`
	Memory  MemoryConfig  `json:"memory"`
	Graph   GraphConfig   `json:"graph"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	DataDir  string `json:"dataDir"`
}

type OpenAIConfig struct {
	APIKey         string `json:"apiKey"`
	APIBase        string `json:"apiBase,omitempty"`
	ChatModel      string `json:"chatModel"`
	EmbedModel     string `json:"embedModel"`
	Dimension      int    `json:"dimension"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type IndexConfig struct {
	Dir       string `json:"dir"`
	ChunkSize int    `json:"chunkSize"`
	Overlap   int    `json:"overlap"`
	TopK      int    `json:"topK"`
}

type MemoryConfig struct {
	DBPath       string `json:"dbPath"`
	HistoryTurns int    `json:"historyTurns"`
}

type GraphConfig struct {
	Enabled  bool   `json:"enabled"`
	URI      string `json:"uri,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	MaxHops  int    `json:"maxHops,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.quantia).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quantia"
	}
	return filepath.Join(home, ".quantia")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = expandPath(cfg.General.DataDir)
	cfg.Index.Dir = expandPath(cfg.Index.Dir)
	cfg.Memory.DBPath = expandPath(cfg.Memory.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.Index.ChunkSize < 1 {
		errs = append(errs, "index.chunkSize must be >= 1")
	}
	if cfg.Index.Overlap < 0 || cfg.Index.Overlap >= cfg.Index.ChunkSize {
		errs = append(errs, "index.overlap must be >= 0 and smaller than index.chunkSize")
	}
	if cfg.Index.TopK < 1 {
		errs = append(errs, "index.topK must be >= 1")
	}
	if cfg.Memory.HistoryTurns < 1 {
		errs = append(errs, "memory.historyTurns must be >= 1")
	}
	if cfg.OpenAI.Dimension < 1 {
		errs = append(errs, "openai.dimension must be >= 1")
	}
	if cfg.OpenAI.TimeoutSeconds < 1 {
		errs = append(errs, "openai.timeoutSeconds must be >= 1")
	}
	if cfg.Graph.Enabled && cfg.Graph.URI == "" {
		errs = append(errs, "graph.uri is required when graph.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// expandPath resolves a leading ~/ against the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
