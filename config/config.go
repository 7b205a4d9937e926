// Package config loads benchmark settings from defaults, an optional config
// file, PYBENCH_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "PYBENCH"

// Keys shared by flags, config files and environment variables.
const (
	KeyTools          = "tool"
	KeyVerbose        = "verbose"
	KeyRuns           = "runs"
	KeyPackages       = "packages"
	KeyResultsDir     = "results-dir"
	KeyWorkDir        = "work-dir"
	KeyTimeout        = "timeout"
	KeyPython         = "python"
	KeyPoetry         = "poetry"
	KeyUV             = "uv"
	KeyUVRequirements = "uv-requirements"
	KeyNoCache        = "no-cache"
	KeyCompress       = "compress"
	KeyJSON           = "json"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the immutable configuration of one benchmark invocation.
type Config struct {
	Tools          []string      `mapstructure:"tool"`
	Verbose        bool          `mapstructure:"verbose"`
	Runs           int           `mapstructure:"runs"`
	Packages       string        `mapstructure:"packages"`
	ResultsDir     string        `mapstructure:"results-dir"`
	WorkDir        string        `mapstructure:"work-dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Python         string        `mapstructure:"python"`
	Poetry         string        `mapstructure:"poetry"`
	UV             string        `mapstructure:"uv"`
	UVRequirements bool          `mapstructure:"uv-requirements"`
	NoCache        bool          `mapstructure:"no-cache"`
	Compress       bool          `mapstructure:"compress"`
	JSON           bool          `mapstructure:"json"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Tools:      []string{"all"},
		Runs:       1,
		Packages:   "packages.txt",
		ResultsDir: "results",
		Timeout:    5 * time.Minute,
		Python:     "python3",
		Poetry:     "poetry",
		UV:         "uv",
	}
}

// RegisterFlags adds one flag per config key to flags, using the defaults
// as flag defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()

	flags.StringSlice(KeyTools, d.Tools,
		"Tools to benchmark: pip, poetry, uv or all (repeatable)")
	flags.BoolP(KeyVerbose, "v", d.Verbose,
		"Print per-step timings")
	flags.Int(KeyRuns, d.Runs,
		"Number of runs per tool")
	flags.String(KeyPackages, d.Packages,
		"Path to the package manifest")
	flags.String(KeyResultsDir, d.ResultsDir,
		"Directory the report is written to")
	flags.String(KeyWorkDir, d.WorkDir,
		"Directory for temporary environments (default: system temp dir)")
	flags.Duration(KeyTimeout, d.Timeout,
		"Timeout for each package manager command")
	flags.String(KeyPython, d.Python,
		"Python interpreter used to create environments")
	flags.String(KeyPoetry, d.Poetry,
		"Poetry command")
	flags.String(KeyUV, d.UV,
		"uv command")
	flags.Bool(KeyUVRequirements, d.UVRequirements,
		"Benchmark uv with requirements.txt (uv pip compile/sync)")
	flags.Bool(KeyNoCache, d.NoCache,
		"Disable package manager caches")
	flags.Bool(KeyCompress, d.Compress,
		"Write the report zstd-compressed")
	flags.Bool(KeyJSON, d.JSON,
		"Print the report as JSON instead of a table")
}

// Load merges the config file at path (optional), the environment and
// flags into a validated Config.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault(KeyTools, d.Tools)
	v.SetDefault(KeyVerbose, d.Verbose)
	v.SetDefault(KeyRuns, d.Runs)
	v.SetDefault(KeyPackages, d.Packages)
	v.SetDefault(KeyResultsDir, d.ResultsDir)
	v.SetDefault(KeyWorkDir, d.WorkDir)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyPython, d.Python)
	v.SetDefault(KeyPoetry, d.Poetry)
	v.SetDefault(KeyUV, d.UV)
	v.SetDefault(KeyUVRequirements, d.UVRequirements)
	v.SetDefault(KeyNoCache, d.NoCache)
	v.SetDefault(KeyCompress, d.Compress)
	v.SetDefault(KeyJSON, d.JSON)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that the type system cannot.
func (c Config) Validate() error {
	if c.Runs < 1 {
		return fmt.Errorf("%w: runs must be at least 1, got %d",
			ErrInvalidConfig, c.Runs)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s",
			ErrInvalidConfig, c.Timeout)
	}

	if strings.TrimSpace(c.Packages) == "" {
		return fmt.Errorf("%w: packages path is empty", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.ResultsDir) == "" {
		return fmt.Errorf("%w: results dir is empty", ErrInvalidConfig)
	}

	for key, value := range map[string]string{
		KeyPython: c.Python,
		KeyPoetry: c.Poetry,
		KeyUV:     c.UV,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s executable is empty", ErrInvalidConfig, key)
		}
	}

	if len(c.Tools) == 0 {
		return fmt.Errorf("%w: no tools selected", ErrInvalidConfig)
	}

	return nil
}
