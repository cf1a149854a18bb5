// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"fenrir/internal/engine"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the file to load when no path is given.
const EnvConfigFile = "FENRIR_CONFIG"

const (
	StoreNone   = "none"
	StoreCSV    = "csv"
	StorePebble = "pebble"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Upper bound on connections served at once.
	Workers     int           `yaml:"workers"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type EngineConfig struct {
	// "preserve" or "reset"
	ModifyPolicy string `yaml:"modify_policy"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// Default is the configuration used for anything a file leaves out.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:     "0.0.0.0",
			Port:        9001,
			Workers:     10,
			IdleTimeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			ModifyPolicy: engine.PreserveTimePriority.String(),
		},
		Store: StoreConfig{
			Kind: StoreCSV,
			Dir:  ".",
		},
		Kafka: KafkaConfig{
			Topic:        "fenrir.events",
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Load reads the file at path, falling back to $FENRIR_CONFIG. Environment
// references in the file are expanded before parsing. With neither a path
// nor the variable set, the defaults are returned.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path == "" {
		log.Debug().Msg("no config file, using defaults")
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse([]byte(os.ExpandEnv(string(raw))))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: server.workers must be at least 1", ErrInvalidConfig))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err))
	}
	if _, err := c.Engine.Policy(); err != nil {
		errs = append(errs, fmt.Errorf("%w: engine: %w", ErrInvalidConfig, err))
	}
	switch c.Store.Kind {
	case StoreNone, StoreCSV, StorePebble:
	default:
		errs = append(errs, fmt.Errorf("%w: store.kind %q", ErrInvalidConfig, c.Store.Kind))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("%w: kafka.brokers required when kafka is enabled", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func (c EngineConfig) Policy() (engine.ModifyPolicy, error) {
	return engine.ParseModifyPolicy(c.ModifyPolicy)
}

// Addr is the listen address of the server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// SetupLogging points the global zerolog logger at out, human readable when
// Pretty is set, and applies the level.
func SetupLogging(c LogConfig, out io.Writer) error {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	if c.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}
