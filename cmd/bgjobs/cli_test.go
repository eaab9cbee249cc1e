package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	command := newCLI(strings.NewReader("")).rootCmd()
	command.SetOut(&stdout)
	command.SetErr(&stderr)
	command.SetArgs(append([]string{
		"--env-file", "",
		"--shell", "/bin/sh",
		"--poll-interval", "10ms",
	}, args...))

	err := command.ExecuteContext(t.Context())

	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	t.Parallel()

	t.Run("Test run reaps commands and shows errors", func(t *testing.T) {
		t.Parallel()

		_, stderr, err := execute(t, "run", "true", "echo broken 1>&2")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if !strings.Contains(stderr, "Background Process Error: broken") {
			t.Errorf("expected error prompt: got '%s'", stderr)
		}
	})

	t.Run("Test run with skip errors", func(t *testing.T) {
		t.Parallel()

		_, stderr, err := execute(t, "run", "--skip-errors", "echo broken 1>&2")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if strings.Contains(stderr, "broken") {
			t.Errorf("expected no error prompt: got '%s'", stderr)
		}
	})

	t.Run("Test copy operation", func(t *testing.T) {
		t.Parallel()

		src := t.TempDir()
		dst := t.TempDir()

		var files []string
		for i := range 10 {
			path := filepath.Join(src, "file"+string(rune('a'+i)))
			if err := os.WriteFile(path, []byte(path), 0o644); err != nil {
				t.Fatalf("write source: %v", err)
			}

			files = append(files, path)
		}

		args := append([]string{"copy"}, files...)
		args = append(args, filepath.Join(src, "missing"), dst)

		stdout, stderr, err := execute(t, args...)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		for _, f := range files {
			got, err := os.ReadFile(filepath.Join(dst, filepath.Base(f)))
			if err != nil || string(got) != f {
				t.Errorf("expected copied file '%s': got '%s' '%v'", f, got, err)
			}
		}

		if !strings.Contains(stderr, "open source") {
			t.Errorf("expected error prompt for missing file: got '%s'", stderr)
		}

		if !strings.Contains(stdout, "%] copying") {
			t.Errorf("expected progress output: got '%s'", stdout)
		}
	})

	t.Run("Test wait exit code", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "wait", "exit 7")

		var exitErr *exitCodeError
		if !errors.As(err, &exitErr) || exitErr.code != 7 {
			t.Errorf("expected exit code error: got '%v'", err)
		}
	})

	scenarios := map[string]struct {
		cmdline string
		wantOut string
		wantErr string
	}{
		"Test check success":         {"true", "success", ""},
		"Test check with message":    {"echo oops 1>&2", "", "oops"},
		"Test check without message": {"exit 3", "", "exit code 3"},
	}

	for scenario, data := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			stdout, _, err := execute(t, "check", data.cmdline)

			if data.wantErr == "" && err != nil {
				t.Errorf("expected not to receive error: got '%v'", err)
			}

			if data.wantErr != "" && (err == nil || !strings.Contains(err.Error(), data.wantErr)) {
				t.Errorf("expected error: got '%v', want '%s'", err, data.wantErr)
			}

			if !strings.Contains(stdout, data.wantOut) {
				t.Errorf("expected output: got '%s', want '%s'", stdout, data.wantOut)
			}
		})
	}

	t.Run("Test capture relays both streams", func(t *testing.T) {
		t.Parallel()

		stdout, stderr, err := execute(t, "capture", "echo out; echo err 1>&2")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if stdout != "out\n" {
			t.Errorf("expected stdout: got '%q', want '%q'", stdout, "out\n")
		}

		if !strings.Contains(stderr, "err\n") {
			t.Errorf("expected stderr: got '%q'", stderr)
		}
	})

	t.Run("Test invalid shell", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "--shell", "/no/such/shell", "check", "true")
		if err == nil || !strings.Contains(err.Error(), "invalid config") {
			t.Errorf("expected invalid config error: got '%v'", err)
		}
	})
}
