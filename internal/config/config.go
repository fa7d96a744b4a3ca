package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML configuration shape for MASAT. Nil fields
// mean "not set" so flag defaults stay in charge.
type FileConfig struct {
	Listen           *string `yaml:"listen"`
	DB               *string `yaml:"db"`
	Environment      *string `yaml:"environment"`
	DriftConcurrency *int    `yaml:"drift_concurrency"`
	AuditLog         *string `yaml:"audit_log"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadLocal searches for a config file in the given directory. It supports
// .masat.yml/.yaml and masat.yml/.yaml, dotfile first.
func LoadLocal(dir string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range []string{".masat.yml", ".masat.yaml", "masat.yml", "masat.yaml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, errors.New("no local config")
}

// DefaultDBPath returns the default SQLite path under the user's home
// directory. No directories are created here; that happens at time of use.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".masat", "masat.db")
}
