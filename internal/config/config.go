// Package config loads the settings for bgjobs binaries from flags, the
// environment, an optional .env file and an optional YAML config file, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BGJOBS"

// Config is the resolved configuration. It satisfies
// background.ConfigProvider.
type Config struct {
	ShellPath    string        `mapstructure:"shell"`
	FastRunOn    bool          `mapstructure:"fast_run"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	Listen       string        `mapstructure:"listen"`
	CertPath     string        `mapstructure:"cert_path"`
	KeyPath      string        `mapstructure:"key_path"`
	CACertPath   string        `mapstructure:"ca_cert_path"`
	Debug        bool          `mapstructure:"debug"`

	// pathDirs lists the directories searched by FastRunComplete.
	pathDirs func() []string
}

// Load builds a Config. envFile, if not empty, is loaded into the process
// environment first; a missing file is not an error. flags may be nil. A flag
// named "config" that is set points at a YAML file to read.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		// Flag names use dashes, config keys use underscores.
		var bindErr error

		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" {
				return
			}

			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})

		if bindErr != nil {
			return nil, bindErr
		}

		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			v.SetConfigType("yaml")

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	v.SetDefault("shell", shell)
	v.SetDefault("fast_run", false)
	v.SetDefault("poll_interval", 100*time.Millisecond)
	v.SetDefault("poll_timeout", time.Millisecond)
	v.SetDefault("listen", "localhost:8443")
	v.SetDefault("cert_path", "certs/server.crt")
	v.SetDefault("key_path", "certs/server.key")
	v.SetDefault("ca_cert_path", "certs/ca.crt")
	v.SetDefault("debug", false)
}

// Validate checks the settings every binary depends on. TLS paths are checked
// separately by ValidateTLS since only the server needs them.
func (c *Config) Validate() error {
	if c.ShellPath == "" {
		return errors.New("shell cannot be empty")
	}

	if _, err := exec.LookPath(c.ShellPath); err != nil {
		return fmt.Errorf("resolve shell: %w", err)
	}

	if c.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}

	if c.PollTimeout <= 0 {
		return errors.New("poll-timeout must be positive")
	}

	return nil
}

// ValidateTLS checks that the certificate paths are set and exist.
func (c *Config) ValidateTLS() error {
	paths := []struct {
		name string
		path string
	}{
		{"cert-path", c.CertPath},
		{"key-path", c.KeyPath},
		{"ca-cert-path", c.CACertPath},
	}

	for _, p := range paths {
		if p.path == "" {
			return fmt.Errorf("%s cannot be empty", p.name)
		}

		if _, err := os.Stat(p.path); err != nil {
			return fmt.Errorf("failed to stat %s: %w", p.name, err)
		}
	}

	return nil
}

// Shell returns the interpreter command lines are run with.
func (c *Config) Shell() string {
	return c.ShellPath
}

// FastRun reports whether commands that were not found are completed and
// retried.
func (c *Config) FastRun() bool {
	return c.FastRunOn
}

// FastRunComplete replaces the first word of cmdline with the only executable
// on PATH whose name starts with it. It returns "" when there is no such
// executable or more than one.
func (c *Config) FastRunComplete(cmdline string) string {
	cmdline = strings.TrimLeft(cmdline, " \t")

	name, rest, _ := strings.Cut(cmdline, " ")
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return ""
	}

	dirs := c.pathDirs
	if dirs == nil {
		dirs = envPathDirs
	}

	var match string

	for _, dir := range dirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), name) {
				continue
			}

			if _, err := exec.LookPath(filepath.Join(dir, e.Name())); err != nil {
				continue
			}

			// The same name in two PATH directories is still one command.
			if match != "" && match != e.Name() {
				return ""
			}

			match = e.Name()
		}
	}

	if match == "" || rest == "" {
		return match
	}

	return match + " " + rest
}

func envPathDirs() []string {
	return filepath.SplitList(os.Getenv("PATH"))
}
