// Package appconf holds the application-wide configuration: where the cache
// lives, which extra network descriptors to load and how queries behave.
package appconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvironmentFromString parses an environment name. The empty string is Development.
func EnvironmentFromString(s string) (Environment, error) {
	switch s {
	case "", "development":
		return Development, nil
	case "test":
		return Test, nil
	case "production":
		return Production, nil
	}
	return Development, fmt.Errorf("unknown environment %q", s)
}

// Config is the application configuration. Values come from defaults, then
// an optional YAML file, then TRANSITQUERY_* environment variables.
type Config struct {
	Env Environment `yaml:"-"`

	Environment           string        `yaml:"environment" validate:"omitempty,oneof=development test production"`
	CacheDir              string        `yaml:"cacheDir" validate:"required"`
	NetworksDir           string        `yaml:"networksDir"`
	AllowInsecureBackends bool          `yaml:"allowInsecureBackends"`
	CacheExpiryInterval   time.Duration `yaml:"cacheExpiryInterval" validate:"gte=0"`
	RequestTimeout        time.Duration `yaml:"requestTimeout" validate:"gte=0"`
	LogLevel              string        `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	SkipBundledNetworks   bool          `yaml:"skipBundledNetworks"`

	// HTTP API, see the serve command.
	ListenAddr      string   `yaml:"listen" validate:"required"`
	RateLimit       int      `yaml:"rateLimit" validate:"gte=0"`
	RateLimitExempt []string `yaml:"rateLimitExempt"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	cacheDir := filepath.Join(os.TempDir(), "transitquery")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "transitquery")
	}
	return Config{
		Env:                 Development,
		Environment:         "development",
		CacheDir:            cacheDir,
		CacheExpiryInterval: 6 * time.Hour,
		RequestTimeout:      30 * time.Second,
		LogLevel:            "info",
		ListenAddr:          ":8080",
		RateLimit:           10,
	}
}

// Load builds a validated Config. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and resolves Env from Environment.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	env, err := EnvironmentFromString(c.Environment)
	if err != nil {
		return err
	}
	c.Env = env
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TRANSITQUERY_ENV"); ok {
		c.Environment = v
	}
	if v, ok := lookup("TRANSITQUERY_CACHE_DIR"); ok {
		c.CacheDir = v
	}
	if v, ok := lookup("TRANSITQUERY_NETWORKS_DIR"); ok {
		c.NetworksDir = v
	}
	if v, ok := lookup("TRANSITQUERY_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("TRANSITQUERY_ALLOW_INSECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRANSITQUERY_ALLOW_INSECURE: %w", err)
		}
		c.AllowInsecureBackends = b
	}
	if v, ok := lookup("TRANSITQUERY_LISTEN"); ok {
		c.ListenAddr = v
	}
	if v, ok := lookup("TRANSITQUERY_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRANSITQUERY_RATE_LIMIT: %w", err)
		}
		c.RateLimit = n
	}
	if v, ok := lookup("TRANSITQUERY_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TRANSITQUERY_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	return nil
}
