// Package config loads the mapgen host configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/mapgen/internal/core/mapdata"
	"github.com/zeusync/mapgen/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid mapgen configuration")

// Config is the host process configuration.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Workers      int           `yaml:"workers"`
	Maps         []MapConfig   `yaml:"maps"`
	Driver       DriverConfig  `yaml:"driver"`
}

// MapConfig describes one map provisioned at startup.
type MapConfig struct {
	Name       string             `yaml:"name"`
	Placement  [3]float32         `yaml:"placement"`
	Parameters mapdata.Parameters `yaml:"parameters"`
}

// DriverConfig controls the procedural parameter driver of the demo host.
// A zero Every disables it.
type DriverConfig struct {
	Every     time.Duration `yaml:"every"`
	Parameter string        `yaml:"parameter"`
	Step      float64       `yaml:"step"`
	Max       float64       `yaml:"max"`
}

// Default returns a single default map ticking at 10 Hz.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		TickInterval: 100 * time.Millisecond,
		Maps: []MapConfig{{
			Name:       "main",
			Placement:  [3]float32{-15, -20, -120},
			Parameters: mapdata.DefaultParameters(),
		}},
	}
}

// Load decodes YAML from r on top of the defaults. Map entries start from
// mapdata.DefaultParameters so omitted fields keep their default values.
func Load(r io.Reader) (*Config, error) {
	var raw struct {
		LogLevel     *string        `yaml:"log_level"`
		TickInterval *time.Duration `yaml:"tick_interval"`
		Workers      *int           `yaml:"workers"`
		Maps         []yaml.Node    `yaml:"maps"`
		Driver       DriverConfig   `yaml:"driver"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	c := Default()
	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.TickInterval != nil {
		c.TickInterval = *raw.TickInterval
	}
	if raw.Workers != nil {
		c.Workers = *raw.Workers
	}
	c.Driver = raw.Driver

	if raw.Maps != nil {
		c.Maps = make([]MapConfig, 0, len(raw.Maps))
		for i := range raw.Maps {
			m := MapConfig{Parameters: mapdata.DefaultParameters()}
			if err := raw.Maps[i].Decode(&m); err != nil {
				return nil, fmt.Errorf("decode map %d: %w", i, err)
			}
			c.Maps = append(c.Maps, m)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile loads the configuration at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive, got %s", ErrInvalidConfig, c.TickInterval)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}

	seen := make(map[string]struct{}, len(c.Maps))
	for i, m := range c.Maps {
		if m.Name == "" {
			return fmt.Errorf("%w: map %d has no name", ErrInvalidConfig, i)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("%w: duplicate map name %q", ErrInvalidConfig, m.Name)
		}
		seen[m.Name] = struct{}{}
		if err := m.Parameters.Validate(); err != nil {
			return fmt.Errorf("%w: map %q: %w", ErrInvalidConfig, m.Name, err)
		}
	}

	if c.Driver.Every < 0 {
		return fmt.Errorf("%w: driver.every must not be negative", ErrInvalidConfig)
	}
	if c.Driver.Every > 0 {
		v, err := mapdata.DefaultParameters().Get(c.Driver.Parameter)
		if err != nil {
			return fmt.Errorf("%w: driver: %w", ErrInvalidConfig, err)
		}
		if c.Driver.Step == 0 || math.IsNaN(c.Driver.Step) || math.IsInf(c.Driver.Step, 0) {
			return fmt.Errorf("%w: driver.step must be finite and non-zero, got %v", ErrInvalidConfig, c.Driver.Step)
		}
		switch v.(type) {
		case int, int64:
			if c.Driver.Step != math.Trunc(c.Driver.Step) || c.Driver.Max != math.Trunc(c.Driver.Max) {
				return fmt.Errorf("%w: driver: %s is an integer, step and max must be whole numbers", ErrInvalidConfig, c.Driver.Parameter)
			}
		case float64:
		default:
			return fmt.Errorf("%w: driver: %s is not numeric", ErrInvalidConfig, c.Driver.Parameter)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}
