package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EnvLookup resolves environment variables; injectable for tests.
type EnvLookup func(key string) (string, bool)

// DefaultEnvLookup reads the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

const configFileName = "devhub-config.json"

// Defaults.
const (
	DefaultServerURL    = "http://localhost:8420/api/runs"
	DefaultPort         = 8420
	DefaultContextLines = 2
	DefaultStepDelayMS  = 0
)

// RuntimeConfig holds the settings shared by the CLI and the replay server.
type RuntimeConfig struct {
	ServerURL      string   `json:"server_url"`
	Port           int      `json:"port"`
	Environment    string   `json:"environment"`
	AllowedOrigins []string `json:"allowed_origins"`
	ContextLines   int      `json:"context_lines"`
	StepDelayMS    int      `json:"step_delay_ms"`
	ScriptPath     string   `json:"script_path"`
}

type loadOptions struct {
	envLookup EnvLookup
	readFile  func(string) ([]byte, error)
	homeDir   func() (string, error)
	overrides []func(*RuntimeConfig)
}

// Option adjusts how Load resolves configuration.
type Option func(*loadOptions)

// WithEnv injects an environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.envLookup = lookup
		}
	}
}

// WithFileReader injects a config file reader.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		if read != nil {
			o.readFile = read
		}
	}
}

// WithHomeDir injects the home directory resolver.
func WithHomeDir(homeDir func() (string, error)) Option {
	return func(o *loadOptions) {
		if homeDir != nil {
			o.homeDir = homeDir
		}
	}
}

// WithOverride applies a caller override after file and env layers.
func WithOverride(override func(*RuntimeConfig)) Option {
	return func(o *loadOptions) {
		o.overrides = append(o.overrides, override)
	}
}

// Load resolves configuration in layers: defaults, then the config file when
// present, then environment variables, then caller overrides.
func Load(opts ...Option) (RuntimeConfig, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := RuntimeConfig{
		ServerURL:    DefaultServerURL,
		Port:         DefaultPort,
		Environment:  "development",
		ContextLines: DefaultContextLines,
		StepDelayMS:  DefaultStepDelayMS,
	}

	if err := applyFile(&cfg, options); err != nil {
		return RuntimeConfig{}, err
	}
	applyEnv(&cfg, options.envLookup)
	for _, override := range options.overrides {
		override(&cfg)
	}

	normalize(&cfg)
	return cfg, nil
}

// applyFile merges the first config file found: ./devhub-config.json, then
// $HOME/devhub-config.json.
func applyFile(cfg *RuntimeConfig, options loadOptions) error {
	paths := []string{configFileName}
	if home, err := options.homeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, configFileName))
	}

	for _, path := range paths {
		data, err := options.readFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, env EnvLookup) {
	if value, ok := env("DEVHUB_SERVER_URL"); ok && value != "" {
		cfg.ServerURL = value
	}
	if value, ok := env("DEVHUB_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if value, ok := env("DEVHUB_ENVIRONMENT"); ok && value != "" {
		cfg.Environment = value
	}
	if value, ok := env("DEVHUB_ALLOWED_ORIGINS"); ok && value != "" {
		origins := strings.Split(value, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.AllowedOrigins = origins
	}
	if value, ok := env("DEVHUB_CONTEXT_LINES"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			cfg.ContextLines = n
		}
	}
	if value, ok := env("DEVHUB_STEP_DELAY_MS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			cfg.StepDelayMS = n
		}
	}
	if value, ok := env("DEVHUB_SCRIPT_PATH"); ok && value != "" {
		cfg.ScriptPath = value
	}
}

func normalize(cfg *RuntimeConfig) {
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ContextLines < 0 {
		cfg.ContextLines = DefaultContextLines
	}
	if cfg.StepDelayMS < 0 {
		cfg.StepDelayMS = DefaultStepDelayMS
	}
}
