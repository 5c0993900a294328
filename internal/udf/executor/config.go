package executor

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// Config tunes the executor engine.
type Config struct {
	// WorkerPath is the helper binary spawned per invocation.
	WorkerPath string `yaml:"worker_path"`
	// EnableSandbox turns seccomp confinement on.
	EnableSandbox bool `yaml:"enable_sandbox"`
	// Timeout is the wall-clock budget for one invocation. Zero disables
	// the timer and the worker runs until it exits.
	Timeout time.Duration `yaml:"timeout"`
	// ProfilePath optionally overrides the built-in syscall profile.
	ProfilePath string `yaml:"profile_path"`
}

// DefaultConfig confines workers and gives them a minute of wall time.
func DefaultConfig() Config {
	return Config{
		WorkerPath:    "udf-worker",
		EnableSandbox: true,
		Timeout:       time.Minute,
	}
}

// LoadConfig reads a config file, filling unset fields from the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, appErr.Wrapf(err, appErr.InvalidParams, "read config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, appErr.Wrapf(err, appErr.InvalidParams, "parse config %s: %v", path, err)
	}
	if cfg.WorkerPath == "" {
		cfg.WorkerPath = DefaultConfig().WorkerPath
	}
	return cfg, nil
}
