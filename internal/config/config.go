package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultConfigName is looked up in the home directory when no --config is given.
const DefaultConfigName = ".deploy-wizard.yaml"

// Config represents the main configuration structure
type Config struct {
	Backend    BackendConfig    `yaml:"backend"    mapstructure:"backend"`
	GitHub     GitHubConfig     `yaml:"github"     mapstructure:"github"`
	GitLab     GitLabConfig     `yaml:"gitlab"     mapstructure:"gitlab"`
	Resolution ResolutionConfig `yaml:"resolution" mapstructure:"resolution"`
	Timeout    TimeoutConfig    `yaml:"timeout"    mapstructure:"timeout"`
	Logging    LoggingConfig    `yaml:"logging"    mapstructure:"logging"`
}

// BackendConfig represents deploy backend settings
type BackendConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	UserID  int    `yaml:"user_id"  mapstructure:"user_id"`
}

// GitHubConfig represents GitHub API settings
type GitHubConfig struct {
	APIURL string `yaml:"api_url" mapstructure:"api_url"`
	Host   string `yaml:"host"    mapstructure:"host"`
	Token  string `yaml:"token"   mapstructure:"token"`
}

// GitLabConfig represents GitLab connection settings
type GitLabConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Host    string `yaml:"host"     mapstructure:"host"`
	Token   string `yaml:"token"    mapstructure:"token"`
}

// ResolutionConfig tunes repository resolution
type ResolutionConfig struct {
	DebounceMS    int     `yaml:"debounce_ms"     mapstructure:"debounce_ms"`
	PerPage       int     `yaml:"per_page"        mapstructure:"per_page"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst"           mapstructure:"burst"`
}

// TimeoutConfig represents timeout configuration
type TimeoutConfig struct {
	HTTPSeconds int `yaml:"http_seconds" mapstructure:"http_seconds"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DebounceDelay returns the settling window for URL and token edits.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Resolution.DebounceMS) * time.Millisecond
}

// HTTPTimeout returns the timeout of one hosting or backend call.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout.HTTPSeconds) * time.Second
}

// Hosts returns the hosting hosts recognized by the URL pre-check.
func (c *Config) Hosts() []string {
	return []string{c.GitHub.Host, c.GitLab.Host}
}

// TokenFor returns the configured token of the provider serving host. Hosts of
// neither provider are served by GitHub.
func (c *Config) TokenFor(host string) string {
	if c.GitLab.Host != "" && strings.Contains(strings.ToLower(host), c.GitLab.Host) {
		return c.GitLab.Token
	}
	return c.GitHub.Token
}

// DefaultConfigPath returns ~/.deploy-wizard.yaml.
func DefaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigName), nil
}

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"api-base": "backend.base_url",
	"user-id":  "backend.user_id",
	"timeout":  "timeout.http_seconds",
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only.
func LoadConfig(configPath string) (*Config, error) {
	return LoadConfigWithFlags(configPath, nil)
}

// LoadConfigWithFlags is LoadConfig with command-line overrides. A flag only
// wins over file and environment when it was set explicitly.
func LoadConfigWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	// Create a new Viper instance to avoid data races in concurrent tests
	v := viper.New()

	// Set default values
	setDefaultValues(v)

	// Enable reading from environment variables
	v.AutomaticEnv()

	// Set environment variable key replacer for nested config
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables to config keys
	_ = v.BindEnv("backend.base_url", "DEPLOY_API_BASE")
	_ = v.BindEnv("backend.user_id", "DEPLOY_USER_ID")
	_ = v.BindEnv("github.api_url", "GITHUB_API_URL")
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("gitlab.base_url", "GITLAB_BASE_URL")
	_ = v.BindEnv("gitlab.token", "GITLAB_TOKEN")
	_ = v.BindEnv("timeout.http_seconds", "HTTP_TIMEOUT_SECONDS")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind %s flag: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		// Check if config file exists
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.GitHub.Host = strings.ToLower(strings.TrimSpace(config.GitHub.Host))
	config.GitLab.Host = strings.ToLower(strings.TrimSpace(config.GitLab.Host))
	config.Logging.Level = strings.ToLower(strings.TrimSpace(config.Logging.Level))

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaultValues sets default configuration values
func setDefaultValues(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.base_url", "https://www.yoitang.cloud/api")
	v.SetDefault("backend.user_id", 1)

	// Hosting defaults
	v.SetDefault("github.api_url", "https://api.github.com/")
	v.SetDefault("github.host", "github.com")
	v.SetDefault("gitlab.base_url", "https://gitlab.com")
	v.SetDefault("gitlab.host", "gitlab.com")

	// Resolution defaults
	v.SetDefault("resolution.debounce_ms", 500)
	v.SetDefault("resolution.per_page", 100)
	v.SetDefault("resolution.rate_per_second", 2)
	v.SetDefault("resolution.burst", 5)

	// Timeout defaults
	v.SetDefault("timeout.http_seconds", 15)

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// validateConfig validates the configuration
func validateConfig(config Config) error {
	if err := requireAbsoluteURL("backend.base_url", config.Backend.BaseURL); err != nil {
		return err
	}

	if config.Backend.UserID <= 0 {
		return fmt.Errorf("backend.user_id must be positive")
	}

	if err := requireAbsoluteURL("github.api_url", config.GitHub.APIURL); err != nil {
		return err
	}

	if err := requireAbsoluteURL("gitlab.base_url", config.GitLab.BaseURL); err != nil {
		return err
	}

	if config.GitHub.Host == "" || config.GitLab.Host == "" {
		return fmt.Errorf("github.host and gitlab.host are required")
	}

	if config.Resolution.DebounceMS < 0 {
		return fmt.Errorf("resolution.debounce_ms must not be negative")
	}

	if config.Resolution.PerPage < 1 || config.Resolution.PerPage > 100 {
		return fmt.Errorf("resolution.per_page must be between 1 and 100")
	}

	if config.Resolution.RatePerSecond < 0 || config.Resolution.Burst < 0 {
		return fmt.Errorf("resolution.rate_per_second and resolution.burst must not be negative")
	}

	if config.Timeout.HTTPSeconds <= 0 {
		return fmt.Errorf("timeout.http_seconds must be positive")
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}

func requireAbsoluteURL(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	parsed, err := url.Parse(value)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", key)
	}
	return nil
}
