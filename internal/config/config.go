// Package config loads the YAML configuration and validates it against a CUE schema.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"skymind/internal/flights"
	"skymind/internal/history"
	"skymind/internal/label"
	"skymind/internal/logging"
	"skymind/internal/predict"
)

// Config is the root configuration.
type Config struct {
	OpenSky   OpenSky   `yaml:"opensky"`
	History   History   `yaml:"history"`
	Filter    Filter    `yaml:"filter"`
	Label     Label     `yaml:"label"`
	Predictor Predictor `yaml:"predictor"`
	Cache     Cache     `yaml:"cache"`
	Sinks     Sinks     `yaml:"sinks"`
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
}

// OpenSky configures the upstream snapshot endpoint.
type OpenSky struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	FetchTTL time.Duration `yaml:"fetch_ttl"`
}

// History selects the persistence backend.
type History struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	Strategy string `yaml:"strategy"`
	Dedupe   bool   `yaml:"dedupe"`
}

// History backends.
const (
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Filter struct {
	Mode string `yaml:"mode"`
}

// Label picks the rule used for persisted labels and whether to run the predictor.
type Label struct {
	Rule    string `yaml:"rule"`
	Predict bool   `yaml:"predict"`
}

type Predictor struct {
	predict.Options `yaml:",inline"`
	CacheModels     bool `yaml:"cache_models"`
}

// Cache configures the fetch cache. An empty RedisAddr keeps it in memory.
type Cache struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	Key           string `yaml:"key"`
}

// Sinks lists the optional outputs. File, when set, receives JSON lines.
type Sinks struct {
	Stdout   bool     `yaml:"stdout"`
	File     string   `yaml:"file"`
	Greptime Greptime `yaml:"greptime"`
	Kafka    Kafka    `yaml:"kafka"`
}

// Greptime is enabled when Endpoint is set.
type Greptime struct {
	Endpoint        string `yaml:"endpoint"`
	Database        string `yaml:"database"`
	StateTable      string `yaml:"state_table"`
	PredictionTable string `yaml:"prediction_table"`
}

// Kafka is enabled when Brokers is non-empty.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns a configuration that works without a file.
func Default() *Config {
	return &Config{
		OpenSky: OpenSky{
			BaseURL:  "https://opensky-network.org/api",
			Timeout:  30 * time.Second,
			FetchTTL: 5 * time.Minute,
		},
		History: History{
			Backend:  BackendCSV,
			Path:     "flight_data.csv",
			Table:    history.DefaultTable,
			Strategy: string(history.StrategyAppend),
		},
		Filter:    Filter{Mode: string(flights.ModeExact)},
		Label:     Label{Rule: label.Cruise.Name()},
		Predictor: Predictor{Options: predict.DefaultOptions()},
		Server:    Server{Addr: ":8080"},
		Log:       Log{Level: "info"},
	}
}

// Load reads path over the defaults, validates it against the CUE schema and
// applies environment overrides. An empty path yields defaults plus env.
// schemaPath may name an external .cue file; "" uses the embedded schema.
func Load(path, schemaPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		schema, err := loadSchema(schemaPath)
		if err != nil {
			return nil, err
		}
		if err := ValidateYAML(path, data, schema); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("OPENSKY_BASE_URL"); v != "" {
		c.OpenSky.BaseURL = v
	}
	if v := os.Getenv("SKYMIND_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("SKYMIND_FETCH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SKYMIND_FETCH_TTL: %w", err)
		}
		c.OpenSky.FetchTTL = d
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Sinks.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Sinks.Greptime.StateTable = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Sinks.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Sinks.Kafka.Topic = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks values after env overrides, which the schema never sees.
func (c *Config) Validate() error {
	if c.OpenSky.BaseURL == "" {
		return fmt.Errorf("opensky.base_url must be set")
	}
	if c.OpenSky.FetchTTL < 0 {
		return fmt.Errorf("opensky.fetch_ttl must not be negative")
	}
	switch c.History.Backend {
	case BackendCSV, BackendSQLite:
		if c.History.Path == "" {
			return fmt.Errorf("history.path must be set for the %s backend", c.History.Backend)
		}
	case BackendPostgres:
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown history.backend %q", c.History.Backend)
	}
	if _, err := history.ParseStrategy(c.History.Strategy); err != nil {
		return err
	}
	if _, err := flights.ParseFilterMode(c.Filter.Mode); err != nil {
		return err
	}
	if _, err := label.Lookup(c.Label.Rule); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
