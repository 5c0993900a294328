//go:build linux

package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/junefish/hdf5-udf/internal/udf/backend"
	"github.com/junefish/hdf5-udf/internal/udf/executor"
	"github.com/junefish/hdf5-udf/pkg/utils/logger"
)

// AppConfig bundles all tool configuration.
type AppConfig struct {
	Logger   logger.Config     `yaml:"logger"`
	Cpp      backend.CppConfig `yaml:"cpp"`
	Executor executor.Config   `yaml:"executor"`
	// TemplateDir is where per-backend runtime templates live.
	TemplateDir string `yaml:"template_dir"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Logger: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Executor:    executor.DefaultConfig(),
		TemplateDir: "templates",
	}
}

// loadAppConfig reads the config file, keeping defaults for a missing file
// or unset fields.
func loadAppConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return AppConfig{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	if cfg.Executor.WorkerPath == "" {
		cfg.Executor.WorkerPath = executor.DefaultConfig().WorkerPath
	}
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "templates"
	}
	return cfg, nil
}
