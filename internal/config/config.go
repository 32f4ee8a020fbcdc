// Package config loads the runtime configuration from a YAML file with
// sensible zero-config defaults. The file is optional; a missing path
// yields the defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/congresstwin/congresstwin/internal/errors"
)

// Duration wraps time.Duration with YAML support for strings like
// "15m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodePlanInvalid, "parse duration", err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SimulationConfig tunes the Monte Carlo defaults.
type SimulationConfig struct {
	Iterations int     `yaml:"iterations"`
	QueuingK   float64 `yaml:"queuing_k"`
}

// LockConfig tunes the advisory lock manager.
type LockConfig struct {
	TTL Duration `yaml:"ttl"`
}

// LogConfig tunes the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full runtime configuration.
type Config struct {
	// DBPath is the SQLite file. Empty selects the in-memory store.
	DBPath     string           `yaml:"db_path"`
	Simulation SimulationConfig `yaml:"simulation"`
	Lock       LockConfig       `yaml:"lock"`
	Log        LogConfig        `yaml:"log"`
	// AttentionListBound caps each attention view's list.
	AttentionListBound int `yaml:"attention_list_bound"`
}

// Default returns the zero-config configuration.
func Default() Config {
	return Config{
		DBPath: "congresstwin.db",
		Simulation: SimulationConfig{
			Iterations: 5000,
			QueuingK:   0.5,
		},
		Lock: LockConfig{TTL: Duration(15 * time.Minute)},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrap(errors.KindInternal, errors.ErrCodeStoreOpenFailed, "read config", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.KindValidation, errors.ErrCodePlanInvalid, "parse config", err)
	}
	if cfg.Simulation.Iterations <= 0 {
		cfg.Simulation.Iterations = Default().Simulation.Iterations
	}
	if cfg.Lock.TTL <= 0 {
		cfg.Lock.TTL = Default().Lock.TTL
	}
	return cfg, nil
}
