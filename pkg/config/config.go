// Package config layers defaults, the workspace file, dotenv and the
// environment into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid configuration")

// Config holds everything the engine needs to locate, run and watch tests.
type Config struct {
	Workspace    string        `yaml:"-"`
	TestGlob     string        `yaml:"testGlob"`
	Exclude      []string      `yaml:"exclude"`
	ResultsDir   string        `yaml:"resultsDir"`
	Executable   string        `yaml:"executable"`
	DisposeDelay time.Duration `yaml:"disposeDelay"`
	LogLevel     string        `yaml:"logLevel"`
}

// Flags holds command-line overrides. Zero values leave the loaded value in place.
type Flags struct {
	Executable string
	LogLevel   string
	ResultsDir string
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// New creates a Config with defaults for workspace.
func New(workspace string) *Config {
	cfg := &Config{
		Workspace:    workspace,
		TestGlob:     DefaultTestGlob,
		ResultsDir:   DefaultResultsDir,
		DisposeDelay: DefaultDisposeDelay,
		LogLevel:     DefaultLogLevel,
	}
	cfg.Exclude = make([]string, len(DefaultExclude))
	copy(cfg.Exclude, DefaultExclude)
	return cfg
}

// Load layers the workspace file and the process environment over defaults.
func Load(workspace string) (*Config, error) {
	return LoadWith(workspace, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup. Variables from the
// workspace .env file apply only where lookup has no value.
func LoadWith(workspace string, lookup LookupFunc) (*Config, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("config: resolve workspace %s: %w", workspace, err)
	}
	cfg := New(abs)

	filePath := filepath.Join(abs, FileName)
	if _, err := os.Stat(filePath); err == nil {
		fileCfg, err := loadConfigFromFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", filePath, err)
		}
		cfg.merge(fileCfg)
	}

	dotenv := map[string]string{}
	envPath := filepath.Join(abs, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		dotenv, err = godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", envPath, err)
		}
	}
	env := func(key string) (string, bool) {
		if lookup != nil {
			if v, ok := lookup(key); ok {
				return v, true
			}
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFromFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(overlay Config) {
	if overlay.TestGlob != "" {
		c.TestGlob = overlay.TestGlob
	}
	if overlay.Exclude != nil {
		c.Exclude = overlay.Exclude
	}
	if overlay.ResultsDir != "" {
		c.ResultsDir = overlay.ResultsDir
	}
	if overlay.Executable != "" {
		c.Executable = overlay.Executable
	}
	if overlay.DisposeDelay > 0 {
		c.DisposeDelay = overlay.DisposeDelay
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvPrefix + "TEST_GLOB"); ok && v != "" {
		c.TestGlob = v
	}
	if v, ok := lookup(EnvPrefix + "EXCLUDE"); ok {
		c.Exclude = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "RESULTS_DIR"); ok && v != "" {
		c.ResultsDir = v
	}
	if v, ok := lookup(EnvPrefix + "EXECUTABLE"); ok && v != "" {
		c.Executable = v
	}
	if v, ok := lookup(EnvPrefix + "DISPOSE_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sDISPOSE_DELAY: %v", ErrInvalid, EnvPrefix, err)
		}
		c.DisposeDelay = d
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Apply overlays non-empty flags.
func (c *Config) Apply(flags Flags) {
	if flags.Executable != "" {
		c.Executable = flags.Executable
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.ResultsDir != "" {
		c.ResultsDir = flags.ResultsDir
	}
}

// Validate checks the glob syntax and the dispose delay.
func (c *Config) Validate() error {
	if !doublestar.ValidatePattern(c.TestGlob) {
		return fmt.Errorf("%w: test glob %q", ErrInvalid, c.TestGlob)
	}
	if c.DisposeDelay < 0 {
		return fmt.Errorf("%w: negative dispose delay %s", ErrInvalid, c.DisposeDelay)
	}
	return nil
}

// ResultsPath returns the absolute results directory.
func (c *Config) ResultsPath() string {
	return c.resolve(c.ResultsDir)
}

// ExecutablePath returns the absolute configured executable, or "" when the
// default lookup applies.
func (c *Config) ExecutablePath() string {
	if c.Executable == "" {
		return ""
	}
	return c.resolve(c.Executable)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Workspace, filepath.FromSlash(p))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
