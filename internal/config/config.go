// Package config reads the quarry CLI configuration file.
//
//	# quarry.yaml
//	schema: models.cue
//	backend: sqlite
//	path: data/shop.db
//	format: text
//
// Relative schema, path and dir entries are resolved against the directory
// holding the file. Environment variables in dsn are expanded, so secrets
// can stay out of the file: dsn: postgres://app:${PGPASSWORD}@db/shop.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/executor"
)

// Config holds the settings shared by every CLI command.
type Config struct {
	Schema  string `yaml:"schema"`
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Schema:  "models.yaml",
		Backend: "sqlite",
		Path:    "quarry.db",
		Format:  "text",
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Schema = resolve(base, cfg.Schema)
	cfg.Path = resolve(base, cfg.Path)
	cfg.Dir = resolve(base, cfg.Dir)
	cfg.DSN = os.ExpandEnv(cfg.DSN)
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Params returns the connection parameters for the configured backend.
// Empty settings are left out.
func (c Config) Params() executor.Params {
	p := executor.Params{}
	for key, v := range map[string]string{
		executor.ParamPath: c.Path,
		executor.ParamDir:  c.Dir,
		executor.ParamDSN:  c.DSN,
	} {
		if v != "" {
			p[key] = v
		}
	}
	return p
}

// Validate checks the output format and that the backend is one of known.
func (c Config) Validate(known []string) error {
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("invalid format %q: must be one of [text json]", c.Format)
	}
	for _, b := range known {
		if b == c.Backend {
			return nil
		}
	}
	return fmt.Errorf("unknown backend %q: must be one of %v", c.Backend, known)
}
