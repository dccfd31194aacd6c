// Package config loads the settings of the roomstream command.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raiich/roomstream/client"
	"github.com/raiich/roomstream/internal/log"
	"github.com/raiich/roomstream/lib/errors"
	"github.com/raiich/roomstream/room"
)

// EnvPrefix prefixes the environment variables that override the file.
const EnvPrefix = "ROOMSTREAM_"

type Config struct {
	Endpoint     string            `yaml:"endpoint"`
	Room         string            `yaml:"room"`
	Transport    string            `yaml:"transport"`
	Dispatcher   string            `yaml:"dispatcher"`
	LogLevel     string            `yaml:"log_level"`
	Headers      map[string]string `yaml:"headers"`
	HistoryLimit int               `yaml:"history_limit"`
	Backoff      BackoffConfig     `yaml:"backoff"`
}

type BackoffConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

func Default() *Config {
	b := client.DefaultBackoff()
	return &Config{
		Endpoint:     "http://localhost:8080",
		Transport:    "sse",
		Dispatcher:   room.DispatcherTypeAsync.String(),
		LogLevel:     "info",
		HistoryLimit: 200,
		Backoff: BackoffConfig{
			BaseDelay:   b.BaseDelay,
			MaxDelay:    b.MaxDelay,
			MaxAttempts: b.MaxAttempts,
		},
	}
}

// LoadFromFile reads a YAML file over the defaults. ${VAR} and ${VAR:-default}
// are substituted from the environment before parsing.
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, errors.Newf("invalid config file %q: only .yaml and .yml files are allowed", configPath)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", cleanPath)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse YAML config")
	}
	return cfg, nil
}

// LoadEnvFiles loads the .env files that exist. Variables already set are kept.
func LoadEnvFiles(envFiles ...string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Warn("failed to load env file", "file", envFile, "error", err)
			continue
		}
		log.Debug("loaded env file", "file", envFile)
	}
}

// ApplyEnv overrides fields from ROOMSTREAM_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ENDPOINT":   &c.Endpoint,
		"ROOM":       &c.Room,
		"TRANSPORT":  &c.Transport,
		"DISPATCHER": &c.Dispatcher,
		"LOG_LEVEL":  &c.LogLevel,
	}
	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		"BACKOFF_BASE_DELAY": &c.Backoff.BaseDelay,
		"BACKOFF_MAX_DELAY":  &c.Backoff.MaxDelay,
	}
	for name, field := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
		}
		*field = d
	}

	ints := map[string]*int{
		"BACKOFF_MAX_ATTEMPTS": &c.Backoff.MaxAttempts,
		"HISTORY_LIMIT":        &c.HistoryLimit,
	}
	for name, field := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
		}
		*field = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	switch c.Transport {
	case "sse", "tcp":
	default:
		errs = append(errs, errors.Newf("unknown transport %q", c.Transport))
	}
	if _, err := room.ParseDispatcherType(c.Dispatcher); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, errors.Wrapf(err, "invalid log level"))
	}
	if c.Backoff.BaseDelay <= 0 {
		errs = append(errs, errors.New("backoff.base_delay must be positive"))
	}
	if c.Backoff.MaxDelay < c.Backoff.BaseDelay {
		errs = append(errs, errors.New("backoff.max_delay must not be less than backoff.base_delay"))
	}
	if c.Backoff.MaxAttempts < 0 {
		errs = append(errs, errors.New("backoff.max_attempts must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) ClientBackoff() client.Backoff {
	return client.Backoff{
		BaseDelay:   c.Backoff.BaseDelay,
		MaxDelay:    c.Backoff.MaxDelay,
		MaxAttempts: c.Backoff.MaxAttempts,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default}. Unset and empty variables take the default.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		defaultValue := ""
		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}
		if value := os.Getenv(submatches[1]); value != "" {
			return value
		}
		return defaultValue
	})
}
