// Package config handles loading, saving, and defining the application's configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by LoadConfig when no config file is found.
var ErrConfigNotFound = errors.New("configuration file not found")

const (
	defaultConfigDir  = "gb"
	defaultConfigFile = "config.yaml"
	envPrefix         = "GB"

	defaultRecentDays      = 14
	defaultRefreshInterval = 5 * time.Second
	defaultCommandTimeout  = 10 * time.Second
	defaultMaxConcurrency  = 4
)

// Keys of the configuration file. Environment overrides use the GB_ prefix, e.g. GB_RECENT_DAYS.
const (
	KeyRepos             = "repos"
	KeyRecentDays        = "recent_days"
	KeyWorktreeIgnore    = "worktree_ignore"
	KeyProtectedBranches = "protected_branches"
	KeyRefreshInterval   = "refresh_interval"
	KeyCommandTimeout    = "command_timeout"
	KeyMaxConcurrency    = "max_concurrency"
)

// Config holds the application configuration settings.
type Config struct {
	Repos             []string      `mapstructure:"repos"`
	RecentDays        int           `mapstructure:"recent_days"`
	WorktreeIgnore    []string      `mapstructure:"worktree_ignore"`
	ProtectedBranches []string      `mapstructure:"protected_branches"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
}

// fileConfig is the on-disk shape; durations are written the way users type them.
type fileConfig struct {
	Repos             []string `yaml:"repos"`
	RecentDays        int      `yaml:"recent_days"`
	WorktreeIgnore    []string `yaml:"worktree_ignore,omitempty"`
	ProtectedBranches []string `yaml:"protected_branches,omitempty"`
	RefreshInterval   string   `yaml:"refresh_interval"`
	CommandTimeout    string   `yaml:"command_timeout"`
	MaxConcurrency    int      `yaml:"max_concurrency"`
}

// DefaultConfig returns a Config struct with default values.
func DefaultConfig() Config {
	return Config{
		Repos:             []string{},
		RecentDays:        defaultRecentDays,
		WorktreeIgnore:    []string{},
		ProtectedBranches: []string{},
		RefreshInterval:   defaultRefreshInterval,
		CommandTimeout:    defaultCommandTimeout,
		MaxConcurrency:    defaultMaxConcurrency,
	}
}

func defaultValues() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		KeyRepos:             d.Repos,
		KeyRecentDays:        d.RecentDays,
		KeyWorktreeIgnore:    d.WorktreeIgnore,
		KeyProtectedBranches: d.ProtectedBranches,
		KeyRefreshInterval:   d.RefreshInterval,
		KeyCommandTimeout:    d.CommandTimeout,
		KeyMaxConcurrency:    d.MaxConcurrency,
	}
}

// DefaultPath returns the location of the configuration file when no custom path is given.
func DefaultPath() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(userConfigDir, defaultConfigDir, defaultConfigFile), nil
}

// LoadConfig loads configuration from customPath, or from DefaultPath when customPath is
// empty. When the file does not exist it returns the defaults and ErrConfigNotFound.
// Values from the file are overridden by GB_* environment variables.
func LoadConfig(customPath string) (Config, error) {
	cfg := DefaultConfig()

	configPath := customPath
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, ErrConfigNotFound
		}
		configPath = p
	}
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, ErrConfigNotFound
		}
		return cfg, fmt.Errorf("error checking config path %q: %w", configPath, err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration %q: %w", configPath, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse configuration %q: %w", configPath, err)
	}

	repos, err := normalizeRepos(cfg.Repos)
	if err != nil {
		return cfg, err
	}
	cfg.Repos = repos
	if cfg.WorktreeIgnore == nil {
		cfg.WorktreeIgnore = []string{}
	}
	if cfg.ProtectedBranches == nil {
		cfg.ProtectedBranches = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration %q: %w", configPath, err)
	}
	return cfg, nil
}

// Validate reports settings the application cannot run with.
func (c Config) Validate() error {
	if len(c.Repos) == 0 {
		return fmt.Errorf("%s: at least one repository is required", KeyRepos)
	}
	if c.RecentDays < 0 {
		return fmt.Errorf("%s must not be negative, got %d", KeyRecentDays, c.RecentDays)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyRefreshInterval, c.RefreshInterval)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyCommandTimeout, c.CommandTimeout)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyMaxConcurrency, c.MaxConcurrency)
	}
	return nil
}

// normalizeRepos expands "~", makes paths absolute and drops duplicates, keeping the
// configured order.
func normalizeRepos(repos []string) ([]string, error) {
	out := make([]string, 0, len(repos))
	seen := make(map[string]bool, len(repos))
	for _, r := range repos {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		p, err := ExpandPath(r)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// ExpandPath resolves a leading "~" and returns the cleaned absolute path.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not expand %q: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("could not resolve %q: %w", p, err)
	}
	return abs, nil
}

// SaveConfig saves the provided configuration to the specified path or the default location.
// It creates the necessary directories if they don't exist.
// It returns the path where the file was saved and any error encountered.
func SaveConfig(cfg Config, customPath string) (savePath string, err error) {
	savePath = customPath
	if savePath == "" {
		savePath, err = DefaultPath()
		if err != nil {
			return "", err
		}
	}

	dir := filepath.Dir(savePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return savePath, fmt.Errorf("could not create config directory %q: %w", dir, err)
	}

	file, err := os.Create(savePath)
	if err != nil {
		return savePath, fmt.Errorf("could not create config file %q: %w", savePath, err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close config file %q: %w", savePath, closeErr)
		}
	}()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	toSave := fileConfig{
		Repos:             cfg.Repos,
		RecentDays:        cfg.RecentDays,
		WorktreeIgnore:    cfg.WorktreeIgnore,
		ProtectedBranches: cfg.ProtectedBranches,
		RefreshInterval:   cfg.RefreshInterval.String(),
		CommandTimeout:    cfg.CommandTimeout.String(),
		MaxConcurrency:    cfg.MaxConcurrency,
	}
	if err := encoder.Encode(toSave); err != nil {
		return savePath, fmt.Errorf("could not encode config to YAML file %q: %w", savePath, err)
	}
	if err := encoder.Close(); err != nil {
		return savePath, fmt.Errorf("could not flush config file %q: %w", savePath, err)
	}
	return savePath, nil
}
