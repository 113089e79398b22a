package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TokenEnv names the environment variable read for the bearer token.
const TokenEnv = "GRAPHPAGER_TOKEN"

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("config: invalid")

// Config holds the runtime settings of the command line tool.
type Config struct {
	Endpoint    string            `yaml:"endpoint" validate:"omitempty,url"`
	Token       string            `yaml:"token"`
	Headers     map[string]string `yaml:"headers"`
	Concurrency int               `yaml:"concurrency" validate:"gte=1,lte=64"`
	MaxRetries  int               `yaml:"maxRetries" validate:"gte=0,lte=10"`
	Timeout     time.Duration     `yaml:"timeout" validate:"gt=0"`
	RateFloor   int               `yaml:"rateFloor" validate:"gte=0"`

	Log     LogConfig     `yaml:"log"`
	Otel    OtelConfig    `yaml:"otel"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Pretty bool   `yaml:"pretty"`
}

type OtelConfig struct {
	// Endpoint of the OTLP collector. Tracing is off when empty.
	Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`
	Service  string `yaml:"service" validate:"required"`
}

type MetricsConfig struct {
	// Addr serves /metrics while a fetch runs. Disabled when empty.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Concurrency: 4,
		MaxRetries:  3,
		Timeout:     30 * time.Second,
		Log:         LogConfig{Level: "info"},
		Otel:        OtelConfig{Service: "graphpager"},
	}
}

// Load reads the YAML file at path over the defaults and applies the token
// environment variable. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Token = tok
	}
	return cfg, cfg.Validate()
}

// Validate checks field ranges and formats.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
