// Package config manages application configuration from various sources.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Source selects where suggestions come from.
type Source string

const (
	SourceAPI       Source = "api"
	SourceOpenAI    Source = "openai"
	SourceAnthropic Source = "anthropic"
)

// Data defines storage configuration.
type Data struct {
	Directory string `json:"directory,omitempty"`
}

// API configures the legal assistant backend.
type API struct {
	BaseURL string        `json:"baseURL,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// OpenAI configures direct model access.
type OpenAI struct {
	APIKey      string  `json:"apiKey,omitempty"`
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"baseURL,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Anthropic configures direct Claude access.
type Anthropic struct {
	APIKey      string  `json:"apiKey,omitempty"`
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"baseURL,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Config is the main configuration structure for the application.
type Config struct {
	Data           Data      `json:"data"`
	WorkingDir     string    `json:"wd,omitempty"`
	Debug          bool      `json:"debug,omitempty"`
	Source         Source    `json:"source,omitempty"`
	Profile        string    `json:"profile,omitempty"`
	HighlightColor string    `json:"highlightColor,omitempty"`
	API            API       `json:"api"`
	OpenAI         OpenAI    `json:"openai"`
	Anthropic      Anthropic `json:"anthropic"`
}

// Application constants
const (
	defaultDataDirectory  = ".wordkit"
	defaultLogLevel       = "info"
	defaultBaseURL        = "http://localhost:8000/api/v1"
	defaultTimeout        = 30 * time.Second
	defaultModel          = "gpt-4o-mini"
	defaultClaudeModel    = "claude-3-7-sonnet-latest"
	defaultTemperature    = 0.2
	defaultProfile        = "default"
	defaultHighlightColor = "Yellow"
	appName               = "wordkit"
)

// highlightColors are the named highlight colors Word accepts.
var highlightColors = []string{
	"Yellow", "BrightGreen", "Turquoise", "Pink", "Blue", "Red", "DarkBlue",
	"Teal", "Green", "Violet", "DarkRed", "DarkYellow", "Gray25", "Gray50", "Black",
}

var (
	mu  sync.RWMutex
	cfg *Config
	v   *viper.Viper
)

// Load reads configuration from the global config file, a local one in
// workingDir, and WORDKIT_* environment variables, in increasing priority.
// If debug is true, debug mode is enabled and log level is set to debug.
func Load(workingDir string, debug bool) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	loaded := &Config{
		WorkingDir: workingDir,
	}
	vp := viper.New()

	configureViper(vp)
	setDefaults(vp, debug)

	// Read global config
	if err := readConfig(vp.ReadInConfig()); err != nil {
		return loaded, err
	}

	// Load and merge local config
	if err := mergeLocalConfig(vp, workingDir); err != nil {
		return loaded, err
	}

	// Apply configuration to the struct
	if err := vp.Unmarshal(loaded); err != nil {
		return loaded, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	loaded.WorkingDir = workingDir

	defaultLevel := slog.LevelInfo
	if loaded.Debug {
		defaultLevel = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(defaultLevel)

	if err := validate(loaded); err != nil {
		return loaded, fmt.Errorf("config validation failed: %w", err)
	}

	cfg, v = loaded, vp
	return cfg, nil
}

// configureViper sets up viper's configuration paths and environment variables.
func configureViper(vp *viper.Viper) {
	vp.SetConfigName(fmt.Sprintf(".%s", appName))
	vp.SetConfigType("json")
	vp.AddConfigPath("$HOME")
	vp.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	vp.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	vp.SetEnvPrefix(strings.ToUpper(appName))
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	_ = vp.BindEnv("openai.apiKey", "WORDKIT_OPENAI_APIKEY", "OPENAI_API_KEY")
	_ = vp.BindEnv("anthropic.apiKey", "WORDKIT_ANTHROPIC_APIKEY", "ANTHROPIC_API_KEY")
}

// setDefaults configures default values for configuration options.
func setDefaults(vp *viper.Viper, debug bool) {
	vp.SetDefault("data.directory", defaultDataDirectory)
	vp.SetDefault("source", string(SourceAPI))
	vp.SetDefault("profile", defaultProfile)
	vp.SetDefault("highlightColor", defaultHighlightColor)
	vp.SetDefault("api.baseURL", defaultBaseURL)
	vp.SetDefault("api.timeout", defaultTimeout)
	vp.SetDefault("openai.apiKey", "")
	vp.SetDefault("openai.model", defaultModel)
	vp.SetDefault("openai.baseURL", "")
	vp.SetDefault("openai.temperature", defaultTemperature)
	vp.SetDefault("anthropic.apiKey", "")
	vp.SetDefault("anthropic.model", defaultClaudeModel)
	vp.SetDefault("anthropic.baseURL", "")
	vp.SetDefault("anthropic.temperature", defaultTemperature)

	if debug {
		vp.SetDefault("debug", true)
		vp.Set("log.level", "debug")
	} else {
		vp.SetDefault("debug", false)
		vp.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig handles the result of reading a configuration file.
func readConfig(err error) error {
	if err == nil {
		return nil
	}

	// It's okay if the config file doesn't exist
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}

	return fmt.Errorf("failed to read config: %w", err)
}

// mergeLocalConfig loads and merges configuration from the local directory.
func mergeLocalConfig(vp *viper.Viper, workingDir string) error {
	local := viper.New()
	local.SetConfigName(fmt.Sprintf(".%s", appName))
	local.SetConfigType("json")
	local.AddConfigPath(workingDir)

	if err := readConfig(local.ReadInConfig()); err != nil {
		return fmt.Errorf("local config: %w", err)
	}
	return vp.MergeConfigMap(local.AllSettings())
}

func validate(c *Config) error {
	switch c.Source {
	case SourceAPI:
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: api.baseURL %q must be an http(s) URL", ErrInvalidConfig, c.API.BaseURL)
		}
	case SourceOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: source %q needs openai.apiKey or OPENAI_API_KEY", ErrInvalidConfig, c.Source)
		}
	case SourceAnthropic:
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("%w: source %q needs anthropic.apiKey or ANTHROPIC_API_KEY", ErrInvalidConfig, c.Source)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}

	if c.API.Timeout <= 0 {
		slog.Warn("api.timeout must be positive, using default", "timeout", c.API.Timeout, "default", defaultTimeout)
		c.API.Timeout = defaultTimeout
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("%w: openai.temperature %v out of range [0, 2]", ErrInvalidConfig, c.OpenAI.Temperature)
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		return fmt.Errorf("%w: anthropic.temperature %v out of range [0, 1]", ErrInvalidConfig, c.Anthropic.Temperature)
	}
	if strings.TrimSpace(c.Profile) == "" {
		c.Profile = defaultProfile
	}
	color, err := normalizeHighlightColor(c.HighlightColor)
	if err != nil {
		return err
	}
	c.HighlightColor = color
	return nil
}

// normalizeHighlightColor accepts a Word highlight name in any case or a hex
// color, and returns the canonical name or an upper case #RRGGBB.
func normalizeHighlightColor(color string) (string, error) {
	color = strings.TrimSpace(color)
	if color == "" {
		return defaultHighlightColor, nil
	}
	for _, name := range highlightColors {
		if strings.EqualFold(name, color) {
			return name, nil
		}
	}
	c, err := colorful.Hex(color)
	if err != nil {
		return "", fmt.Errorf("%w: highlightColor %q is neither a Word highlight name nor a hex color", ErrInvalidConfig, color)
	}
	return strings.ToUpper(c.Hex()), nil
}

// Get returns the current configuration, or nil before Load.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// WorkingDirectory returns the current working directory from the configuration.
func WorkingDirectory() string {
	c := Get()
	if c == nil {
		panic("config not loaded")
	}
	return c.WorkingDir
}

// DataDirectory resolves data.directory against the working directory.
func (c *Config) DataDirectory() string {
	if filepath.IsAbs(c.Data.Directory) {
		return c.Data.Directory
	}
	return filepath.Join(c.WorkingDir, c.Data.Directory)
}

func updateCfgFile(updateCfg func(config map[string]any)) error {
	mu.RLock()
	vp := v
	mu.RUnlock()
	if vp == nil {
		return fmt.Errorf("config not loaded")
	}

	configFile := vp.ConfigFileUsed()
	var configData []byte
	if configFile == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configFile = filepath.Join(homeDir, fmt.Sprintf(".%s.json", appName))
		slog.Info("config file not found, creating new one", "path", configFile)
		configData = []byte(`{}`)
	} else {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		configData = data
	}

	// a generic map keeps keys this version does not know about
	userCfg := map[string]any{}
	if err := json.Unmarshal(configData, &userCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	updateCfg(userCfg)

	updatedData, err := json.MarshalIndent(userCfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configFile, updatedData, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// UpdateAPIBaseURL changes api.baseURL in memory and in the global config file.
func UpdateAPIBaseURL(baseURL string) error {
	mu.Lock()
	if cfg == nil {
		mu.Unlock()
		return fmt.Errorf("config not loaded")
	}
	cfg.API.BaseURL = baseURL
	mu.Unlock()

	return updateCfgFile(func(config map[string]any) {
		api, _ := config["api"].(map[string]any)
		if api == nil {
			api = map[string]any{}
		}
		api["baseURL"] = baseURL
		config["api"] = api
	})
}
