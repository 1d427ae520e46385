package certgen

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadConfig.
const (
	EnvLogLevel     = "LOG_LEVEL"
	EnvOutputDir    = "CERTGEN_OUTPUT_DIR"
	EnvSpecFile     = "CERTGEN_SPEC"
	EnvCertEncoding = "CERTGEN_CERT_ENCODING"
	EnvHistoryDB    = "CERTGEN_HISTORY_DB"
)

const (
	DefaultEnvFile   = ".env"
	DefaultOutputDir = "generated-certs"
	DefaultLogLevel  = "info"
)

var envKeys = []string{EnvLogLevel, EnvOutputDir, EnvSpecFile, EnvCertEncoding, EnvHistoryDB}

// Config holds the process settings. It is built once at startup and passed
// by value.
type Config struct {
	OutputDir    string
	SpecFile     string
	CertEncoding Encoding
	LogLevel     string
	HistoryDB    string
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		OutputDir:    DefaultOutputDir,
		CertEncoding: EncodingPEM,
		LogLevel:     DefaultLogLevel,
	}
}

func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: config: output_dir cannot be empty", ErrConfig)
	}
	switch c.CertEncoding {
	case EncodingPEM, EncodingDER:
	default:
		return fmt.Errorf("%w: config: cert_encoding must be %q or %q, got %q", ErrConfig, EncodingPEM, EncodingDER, c.CertEncoding)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: config: %w", ErrConfig, err)
	}
	return nil
}

// SlogLevel returns the configured log level. Validate has already rejected
// unknown names, which map to info here.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

type (
	ConfigOption func(o *configOptions)

	configOptions struct {
		envFile   string
		envVars   map[string]string
		overrides Config
	}
)

// WithEnvFile sets the environment file to read. An empty path skips it.
func WithEnvFile(path string) ConfigOption {
	return func(o *configOptions) {
		o.envFile = path
	}
}

// WithEnvVars replaces the process environment.
func WithEnvVars(envVars map[string]string) ConfigOption {
	return func(o *configOptions) {
		o.envVars = envVars
	}
}

// WithOverrides applies the non-empty fields of c last, typically from
// command-line flags.
func WithOverrides(c Config) ConfigOption {
	return func(o *configOptions) {
		o.overrides = c
	}
}

// LoadConfig merges defaults, the environment file, the process environment
// and overrides, in increasing priority. A missing environment file is an
// error.
func LoadConfig(opts ...ConfigOption) (Config, error) {
	o := &configOptions{envFile: DefaultEnvFile}
	for _, opt := range opts {
		opt(o)
	}
	if o.envVars == nil {
		o.envVars = processEnv()
	}

	cfg := DefaultConfig()

	if o.envFile != "" {
		fileVars, err := godotenv.Read(o.envFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: environment file %s not found: %w", ErrConfig, o.envFile, err)
			}
			return Config{}, fmt.Errorf("%w: failed to init environment from %s: %w", ErrConfig, o.envFile, err)
		}
		cfg.merge(fromEnv(fileVars))
	}

	cfg.merge(fromEnv(o.envVars))
	cfg.merge(o.overrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func processEnv() map[string]string {
	vars := make(map[string]string, len(envKeys))
	for _, k := range envKeys {
		if v, ok := os.LookupEnv(k); ok {
			vars[k] = v
		}
	}
	return vars
}

func fromEnv(vars map[string]string) Config {
	return Config{
		OutputDir:    vars[EnvOutputDir],
		SpecFile:     vars[EnvSpecFile],
		CertEncoding: Encoding(strings.ToLower(vars[EnvCertEncoding])),
		LogLevel:     strings.ToLower(vars[EnvLogLevel]),
		HistoryDB:    vars[EnvHistoryDB],
	}
}

// merge copies the non-empty fields of src into c.
func (c *Config) merge(src Config) {
	if src.OutputDir != "" {
		c.OutputDir = src.OutputDir
	}
	if src.SpecFile != "" {
		c.SpecFile = src.SpecFile
	}
	if src.CertEncoding != "" {
		c.CertEncoding = src.CertEncoding
	}
	if src.LogLevel != "" {
		c.LogLevel = src.LogLevel
	}
	if src.HistoryDB != "" {
		c.HistoryDB = src.HistoryDB
	}
}

// Env renders c as environment variables, the inverse of the environment
// file parsing done by LoadConfig.
func (c Config) Env() map[string]string {
	return map[string]string{
		EnvOutputDir:    c.OutputDir,
		EnvSpecFile:     c.SpecFile,
		EnvCertEncoding: string(c.CertEncoding),
		EnvLogLevel:     c.LogLevel,
		EnvHistoryDB:    c.HistoryDB,
	}
}
