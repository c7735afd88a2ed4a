package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raoulx24/backup-archiver/internal/types"
)

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// Load reads the YAML file at path on top of Defaults and validates it.
func Load(path string) (*Config, error) {
	// read raw YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	// expand $(ENV_VAR) placeholders
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes fields in place. Source root existence is not checked
// here; the scanner resolves roots for every run.
func (c *Config) Validate() error {
	mode, err := types.ParseMode(c.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigurationInvalid, err)
	}
	c.Mode = mode.String()

	if c.MaxBackups < 1 {
		c.MaxBackups = 1
	}
	if c.ProgressEvery < 1 {
		c.ProgressEvery = 100
	}
	if c.Compression < 0 || c.Compression > 9 {
		return fmt.Errorf("%w: compressionLevel %d not in 0..9", types.ErrConfigurationInvalid, c.Compression)
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		return fmt.Errorf("%w: backupDir is empty", types.ErrConfigurationInvalid)
	}
	if strings.TrimSpace(c.LockFile) == "" {
		c.LockFile = "backup.lock"
	}

	for _, p := range c.Exclude {
		if _, err := filepath.Match(strings.ToLower(p), ""); err != nil {
			return fmt.Errorf("%w: exclusion pattern %q: %v", types.ErrConfigurationInvalid, p, err)
		}
	}

	sources := c.Sources[:0]
	for _, s := range c.Sources {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	c.Sources = sources
	return nil
}

// BackupMode returns the parsed Mode. Validate must have succeeded.
func (c *Config) BackupMode() types.Mode {
	m, _ := types.ParseMode(c.Mode)
	return m
}

// WriteDefault writes a starter config to path. It refuses to overwrite.
func WriteDefault(path string) error {
	cfg := Defaults()
	home, _ := os.UserHomeDir()
	cfg.Sources = []string{filepath.Join(home, "Documents")}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshalling yaml: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}
