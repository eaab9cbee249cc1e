package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nixpig/bgjobs/internal/background"
	"github.com/nixpig/bgjobs/internal/config"
	"github.com/nixpig/bgjobs/internal/termui"
	"github.com/spf13/cobra"
)

type cli struct {
	in io.Reader

	envFile string

	cfg          *config.Config
	logger       *slog.Logger
	supervisor   *background.Supervisor
	progressList *termui.ProgressList
}

func newCLI(in io.Reader) *cli {
	return &cli{in: in}
}

func (c *cli) rootCmd() *cobra.Command {
	command := &cobra.Command{
		Use:          "bgjobs",
		Short:        "Run and supervise background jobs",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	command.AddCommand(
		c.serveCmd(),
		c.runCmd(),
		c.copyCmd(),
		c.waitCmd(),
		c.checkCmd(),
		c.captureCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	flags := command.PersistentFlags()

	flags.String("config", "", "Path to YAML config file")
	flags.StringVar(&c.envFile, "env-file", ".env", "Path to .env file")
	flags.String("shell", "", "Shell used to run commands (default $SHELL or /bin/sh)")
	flags.Bool("fast-run", false, "Complete and rerun commands that were not found")
	flags.Duration("poll-interval", 100*time.Millisecond, "How often jobs are polled")
	flags.Duration("poll-timeout", time.Millisecond, "How long each poll waits for command errors")
	flags.Bool("debug", false, "Enable debug logs")

	return command
}

// setup resolves config and builds the supervisor shared by all commands.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.envFile, cmd.Flags())
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	c.progressList = termui.NewProgressList(cmd.OutOrStdout(), 0)

	c.supervisor = background.New(
		cfg,
		background.WithLogger(c.logger),
		background.WithPrompter(termui.NewPrompter(c.in, cmd.ErrOrStderr())),
		background.WithProgressList(c.progressList),
		background.WithPollTimeout(cfg.PollTimeout),
	)

	c.logger.Debug(
		"loaded config",
		"shell", cfg.Shell(),
		"fast_run", cfg.FastRun(),
		"poll_interval", cfg.PollInterval,
	)

	return nil
}
