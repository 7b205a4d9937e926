package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", newFlags(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Tools) != 1 || cfg.Tools[0] != "all" {
		t.Errorf("tools = %v, want [all]", cfg.Tools)
	}
	if cfg.Runs != 1 {
		t.Errorf("runs = %d, want 1", cfg.Runs)
	}
	if cfg.Packages != "packages.txt" {
		t.Errorf("packages = %q, want packages.txt", cfg.Packages)
	}
	if cfg.ResultsDir != "results" {
		t.Errorf("results dir = %q, want results", cfg.ResultsDir)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("timeout = %s, want 5m", cfg.Timeout)
	}
	if cfg.Python != "python3" || cfg.Poetry != "poetry" || cfg.UV != "uv" {
		t.Errorf("executables = %q %q %q", cfg.Python, cfg.Poetry, cfg.UV)
	}
}

func TestLoadFlags(t *testing.T) {
	flags := newFlags(t,
		"--tool", "uv", "--tool", "pip",
		"--runs", "3",
		"--verbose",
		"--timeout", "90s",
		"--uv", "/opt/bin/uv",
	)

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Tools) != 2 || cfg.Tools[0] != "uv" || cfg.Tools[1] != "pip" {
		t.Errorf("tools = %v, want [uv pip]", cfg.Tools)
	}
	if cfg.Runs != 3 {
		t.Errorf("runs = %d, want 3", cfg.Runs)
	}
	if !cfg.Verbose {
		t.Error("expected verbose")
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("timeout = %s, want 90s", cfg.Timeout)
	}
	if cfg.UV != "/opt/bin/uv" {
		t.Errorf("uv = %q, want /opt/bin/uv", cfg.UV)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pybench.yaml")
	content := "runs: 2\npoetry: pipx run poetry\nresults-dir: out\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PYBENCH_RESULTS_DIR", "env-out")

	cfg, err := Load(path, newFlags(t, "--runs", "4"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Runs != 4 {
		t.Errorf("runs = %d, want 4 (flag beats file)", cfg.Runs)
	}
	if cfg.Poetry != "pipx run poetry" {
		t.Errorf("poetry = %q, want value from file", cfg.Poetry)
	}
	if cfg.ResultsDir != "env-out" {
		t.Errorf("results dir = %q, want env-out (env beats file)", cfg.ResultsDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), newFlags(t))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero runs", func(c *Config) { c.Runs = 0 }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"empty packages", func(c *Config) { c.Packages = " " }},
		{"empty results dir", func(c *Config) { c.ResultsDir = "" }},
		{"empty uv", func(c *Config) { c.UV = "" }},
		{"no tools", func(c *Config) { c.Tools = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
