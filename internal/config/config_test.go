package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.Bool("fast-run", false, "")
	flags.Duration("poll-interval", 100*time.Millisecond, "")
	flags.String("listen", "localhost:8443", "")

	require.NoError(t, flags.Parse(args))

	return flags
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHELL", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "/bin/sh", cfg.Shell())
	assert.False(t, cfg.FastRun())
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, "localhost:8443", cfg.Listen)
	assert.Equal(t, "certs/ca.crt", cfg.CACertPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadShellFromEnvironment(t *testing.T) {
	t.Setenv("SHELL", "/bin/bash")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "/bin/bash", cfg.Shell())
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("BGJOBS_POLL_INTERVAL", "250ms")
	t.Setenv("BGJOBS_LISTEN", "localhost:9000")

	dir := t.TempDir()

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BGJOBS_FAST_RUN=true\nBGJOBS_POLL_TIMEOUT=5ms\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BGJOBS_FAST_RUN")
		os.Unsetenv("BGJOBS_POLL_TIMEOUT")
	})

	configFile := filepath.Join(dir, "bgjobs.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("shell: /bin/sh\ndebug: true\nlisten: localhost:7000\n"), 0o600))

	cfg, err := Load(envFile, newFlags(t, "--config", configFile, "--listen", "localhost:6000"))
	require.NoError(t, err)

	assert.True(t, cfg.FastRun(), "from .env file")
	assert.Equal(t, 5*time.Millisecond, cfg.PollTimeout, "from .env file")
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval, "environment over default")
	assert.True(t, cfg.Debug, "from config file")
	assert.Equal(t, "/bin/sh", cfg.Shell(), "from config file")
	assert.Equal(t, "localhost:6000", cfg.Listen, "flag over environment and config file")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing env file is ignored", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.env"), nil)
		assert.NoError(t, err)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load("", newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
		assert.ErrorContains(t, err, "read config file")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ShellPath:    "/bin/sh",
			PollInterval: time.Second,
			PollTimeout:  time.Millisecond,
		}
	}

	scenarios := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"empty shell":        {func(c *Config) { c.ShellPath = "" }, "shell cannot be empty"},
		"missing shell":      {func(c *Config) { c.ShellPath = "/no/such/shell" }, "resolve shell"},
		"zero poll interval": {func(c *Config) { c.PollInterval = 0 }, "poll-interval"},
		"zero poll timeout":  {func(c *Config) { c.PollTimeout = 0 }, "poll-timeout"},
	}

	for name, data := range scenarios {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			data.mutate(cfg)

			assert.ErrorContains(t, cfg.Validate(), data.wantErr)
		})
	}

	t.Run("tls paths", func(t *testing.T) {
		dir := t.TempDir()

		cfg := valid()
		cfg.CertPath = filepath.Join(dir, "server.crt")
		cfg.KeyPath = filepath.Join(dir, "server.key")
		cfg.CACertPath = filepath.Join(dir, "ca.crt")

		assert.ErrorContains(t, cfg.ValidateTLS(), "cert-path")

		for _, p := range []string{cfg.CertPath, cfg.KeyPath, cfg.CACertPath} {
			require.NoError(t, os.WriteFile(p, nil, 0o600))
		}

		assert.NoError(t, cfg.ValidateTLS())
	})
}

func TestFastRunComplete(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	for _, f := range []struct {
		dir  string
		name string
		mode os.FileMode
	}{
		{first, "rsync-backup", 0o755},
		{second, "rsync-backup", 0o755},
		{first, "gitk", 0o755},
		{first, "gitlab-runner", 0o755},
		{first, "notes.txt", 0o644},
	} {
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, f.name), []byte("#!/bin/sh\n"), f.mode))
	}

	cfg := &Config{pathDirs: func() []string { return []string{first, second, "/no/such/dir"} }}

	scenarios := map[string]struct {
		cmdline string
		want    string
	}{
		"unique prefix":          {"rsync-b --dry-run /src /dst", "rsync-backup --dry-run /src /dst"},
		"unique prefix only":     {"rsy", "rsync-backup"},
		"ambiguous prefix":       {"git status", ""},
		"not executable":         {"notes", ""},
		"no match":               {"zzz", ""},
		"path is not completed":  {"./rsy", ""},
		"empty command":          {"", ""},
		"leading space stripped": {"  rsy x", "rsync-backup x"},
	}

	for name, data := range scenarios {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, data.want, cfg.FastRunComplete(data.cmdline))
		})
	}
}
