// Package config loads larder.yaml and the LARDER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/schema"
)

// FileName is looked up from the working directory upwards.
const FileName = "larder.yaml"

// Store backends.
const (
	BackendLocal = "local"
	BackendAWS   = "aws"
)

type Config struct {
	Table   string             `yaml:"table" validate:"required,min=3,max=255"`
	Store   Store              `yaml:"store"`
	Batch   ddbsdk.BatchConfig `yaml:"batch"`
	Cache   Cache              `yaml:"cache"`
	Breaker Breaker            `yaml:"breaker"`
	Log     Log                `yaml:"log"`
}

type Store struct {
	Backend string `yaml:"backend" validate:"oneof=local aws"`
	// DataDir is where the local backend keeps its badger files.
	DataDir  string `yaml:"dataDir"`
	InMemory bool   `yaml:"inMemory"`
	Region   string `yaml:"region"`
	// Endpoint overrides the AWS endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

type Cache struct {
	Disabled bool `yaml:"disabled"`
	// TTLs per namespace; unset namespaces keep cache.DefaultTTLs.
	TTLs map[string]time.Duration `yaml:"ttls"`
}

type Breaker struct {
	Enabled             bool          `yaml:"enabled"`
	MaxRequests         uint32        `yaml:"maxRequests"`
	Interval            time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout             time.Duration `yaml:"timeout" validate:"gte=0"`
	ConsecutiveFailures uint32        `yaml:"consecutiveFailures"`
}

type Log struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	b := ddbsdk.DefaultBreakerSettings()
	return Config{
		Table: schema.TableName,
		Store: Store{Backend: BackendLocal, DataDir: ".larder"},
		Batch: ddbsdk.DefaultBatchConfig(),
		Breaker: Breaker{
			Enabled:             true,
			MaxRequests:         b.MaxRequests,
			Interval:            b.Interval,
			Timeout:             b.Timeout,
			ConsecutiveFailures: b.ConsecutiveFailures,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path, or the nearest larder.yaml when path is empty, on top
// of Default, then applies environment overrides and validates. A missing
// file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = Find()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
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

// Find searches for larder.yaml walking up from the current directory and
// returns "" if there is none.
func Find() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path
		} else if !errors.Is(err, fs.ErrNotExist) {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("LARDER_TABLE", &c.Table)
	str("LARDER_BACKEND", &c.Store.Backend)
	str("LARDER_DATA_DIR", &c.Store.DataDir)
	str("LARDER_REGION", &c.Store.Region)
	str("LARDER_ENDPOINT", &c.Store.Endpoint)
	str("LARDER_LOG_LEVEL", &c.Log.Level)

	for name, dst := range map[string]*bool{
		"LARDER_IN_MEMORY":       &c.Store.InMemory,
		"LARDER_LOG_DEVELOPMENT": &c.Log.Development,
		"LARDER_CACHE_DISABLED":  &c.Cache.Disabled,
		"LARDER_BREAKER_ENABLED": &c.Breaker.Enabled,
	} {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the struct tags and that every cache TTL names a known
// namespace.
func (c Config) Validate() error {
	if err := larder.Validate(c); err != nil {
		return fmt.Errorf("config %w", err)
	}
	known := cache.DefaultTTLs()
	for ns, ttl := range c.Cache.TTLs {
		if _, ok := known[ns]; !ok {
			return fmt.Errorf("config invalid: unknown cache namespace %q", ns)
		}
		if ttl <= 0 {
			return fmt.Errorf("config invalid: cache ttl of %q must be positive", ns)
		}
	}
	return nil
}

// BreakerSettings converts the breaker section, named after the table.
func (c Config) BreakerSettings() ddbsdk.BreakerSettings {
	return ddbsdk.BreakerSettings{
		Name:                c.Table,
		MaxRequests:         c.Breaker.MaxRequests,
		Interval:            c.Breaker.Interval,
		Timeout:             c.Breaker.Timeout,
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
	}
}

// Logger builds the zap logger described by the log section.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
