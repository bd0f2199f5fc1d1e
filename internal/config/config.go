// Package config provides configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shop-pricing/core/catalog"
	"shop-pricing/internal/errors"
	"shop-pricing/internal/logging"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SHOP_PRICING_"

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" yaml:"version"`

	// Server contains HTTP server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Store selects and configures persistence
	Store StoreConfig `json:"store" yaml:"store"`

	// Auth contains bearer token configuration
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Pricing contains pricing configuration
	Pricing PricingConfig `json:"pricing" yaml:"pricing"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" yaml:"addr"`

	ReadTimeout  Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
}

// StoreConfig contains persistence settings
type StoreConfig struct {
	// Backend is memory or postgres
	Backend string `json:"backend" yaml:"backend"`

	// DSN is the postgres connection string
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// MaxOpenConns caps the postgres pool
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`
}

// AuthConfig contains token verification settings
type AuthConfig struct {
	// JWTSecret is the HS256 signing secret
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`

	// Issuer, when set, must match the token's iss claim
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// Currency of the built-in default catalog
	Currency string `json:"currency" yaml:"currency"`

	// DefaultCatalogFile is an HCL seed used before a tenant's first save
	DefaultCatalogFile string `json:"default_catalog_file,omitempty" yaml:"default_catalog_file,omitempty"`
}

// Duration is a time.Duration written as "15s" in config files
type Duration time.Duration

// Std returns the duration as time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "15s" or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return fmt.Errorf("duration must be a string or seconds: %s", data)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
		},
		Store: StoreConfig{
			Backend:      BackendMemory,
			MaxOpenConns: 10,
		},
		Pricing: PricingConfig{
			Currency: catalog.DefaultCurrency,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a JSON or YAML file, chosen by extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Config("failed to read config", err).WithContext("path", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Config("failed to parse config", err).WithContext("path", path)
	}
	return cfg, nil
}

// LoadEnv reads envFile (if it exists) into the process environment without
// replacing variables that are already set, then applies SHOP_PRICING_*
// overrides to c.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return errors.Config("failed to load env file", err).WithContext("path", envFile)
			}
		}
	}
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("ADDR", &c.Server.Addr)
	str("STORE_BACKEND", &c.Store.Backend)
	str("DATABASE_URL", &c.Store.DSN)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_ISSUER", &c.Auth.Issuer)
	str("CURRENCY", &c.Pricing.Currency)
	str("DEFAULT_CATALOG_FILE", &c.Pricing.DefaultCatalogFile)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup(EnvPrefix + "MAX_OPEN_CONNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Config(EnvPrefix+"MAX_OPEN_CONNS must be an integer", err)
		}
		c.Store.MaxOpenConns = n
	}
	for name, dst := range map[string]*Duration{
		"READ_TIMEOUT":  &c.Server.ReadTimeout,
		"WRITE_TIMEOUT": &c.Server.WriteTimeout,
	} {
		if v, ok := lookup(EnvPrefix + name); ok {
			if err := dst.parse(v); err != nil {
				return errors.Config(EnvPrefix+name+" must be a duration", err)
			}
		}
	}
	return nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DSN == "" {
			return errors.Config("store.dsn is required for the postgres backend", nil)
		}
	default:
		return errors.Config(fmt.Sprintf("unknown store backend %q", c.Store.Backend), nil)
	}
	if len(c.Pricing.Currency) != 3 {
		return errors.Config(fmt.Sprintf("pricing.currency must be an ISO code, got %q", c.Pricing.Currency), nil)
	}
	return nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
