// ABOUTME: Configuration loading and parsing for persona-bot
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and validation

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultModel          = "gpt-4o"
	DefaultVisionModel    = "gpt-4o"
	DefaultImageModel     = "dall-e-3"
	DefaultImageSize      = "1024x1024"
	DefaultRequestTimeout = 2 * time.Minute
)

// Config represents the complete persona-bot configuration
type Config struct {
	Matrix   MatrixConfig   `yaml:"matrix" toml:"matrix"`
	AI       AIConfig       `yaml:"ai" toml:"ai"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Media    MediaConfig    `yaml:"media" toml:"media"`
	Chat     ChatConfig     `yaml:"chat" toml:"chat"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// MatrixConfig holds the Matrix account the bot runs as
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	Username    string `yaml:"username" toml:"username"`
	Password    string `yaml:"password" toml:"password"`
	RecoveryKey string `yaml:"recovery_key" toml:"recovery_key"` // enables E2EE when set

	// Only respond in these rooms (empty = all joined rooms)
	AllowedRooms    []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	TypingIndicator bool     `yaml:"typing_indicator" toml:"typing_indicator"`
}

// AIConfig holds the generative AI endpoint configuration
type AIConfig struct {
	APIKey      string `yaml:"api_key" toml:"api_key"`
	BaseURL     string `yaml:"base_url" toml:"base_url"` // empty = api.openai.com
	Model       string `yaml:"model" toml:"model"`
	VisionModel string `yaml:"vision_model" toml:"vision_model"`
	ImageModel  string `yaml:"image_model" toml:"image_model"`
	ImageSize   string `yaml:"image_size" toml:"image_size"`
	Mock        bool   `yaml:"mock" toml:"mock"` // canned responses, no network

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// MediaConfig holds the scratch directory for transient photos
type MediaConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// ChatConfig tunes agent chat prompts
type ChatConfig struct {
	// HistoryTurns is how many previous exchanges are replayed into each prompt
	HistoryTurns int `yaml:"history_turns" toml:"history_turns"`
}

// ServerConfig holds the optional health endpoint address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(string(data), strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration content, applies defaults and validates it.
func Parse(content string, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(content)

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel
	}
	if c.AI.VisionModel == "" {
		c.AI.VisionModel = DefaultVisionModel
	}
	if c.AI.ImageModel == "" {
		c.AI.ImageModel = DefaultImageModel
	}
	if c.AI.ImageSize == "" {
		c.AI.ImageSize = DefaultImageSize
	}
	if c.AI.RequestTimeout == 0 {
		c.AI.RequestTimeout = DefaultRequestTimeout
	}
	if c.Media.Dir == "" && c.Database.Path != "" {
		c.Media.Dir = filepath.Join(filepath.Dir(c.Database.Path), "media")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" && (c.Matrix.Username == "" || c.Matrix.Password == "") {
		return fmt.Errorf("matrix.access_token or matrix.username and matrix.password are required")
	}

	if c.AI.APIKey == "" && !c.AI.Mock {
		return fmt.Errorf("ai.api_key is required (or set ai.mock)")
	}
	if c.AI.BaseURL != "" {
		if _, err := url.Parse(c.AI.BaseURL); err != nil {
			return fmt.Errorf("ai.base_url is not a valid URL: %w", err)
		}
	}
	if c.AI.RequestTimeout < 0 {
		return fmt.Errorf("ai.request_timeout must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Chat.HistoryTurns < 0 {
		return fmt.Errorf("chat.history_turns must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.AI.RequestTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.AI.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.AI.RequestTimeoutRaw, err)
		}
		cfg.AI.RequestTimeout = d
	}
	return nil
}
