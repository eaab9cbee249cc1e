package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/nixpig/bgjobs/internal/background"
	"github.com/nixpig/bgjobs/internal/inspect"
	"github.com/nixpig/bgjobs/internal/tlsconfig"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "serve",
		Short:   "Poll jobs and serve them to bgctl over mTLS",
		Example: "  bgjobs serve --listen localhost:8443 --debug",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.ValidateTLS(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			server, err := inspect.NewServer(c.supervisor, c.logger, &tlsconfig.Config{
				CertPath:   c.cfg.CertPath,
				KeyPath:    c.cfg.KeyPath,
				CACertPath: c.cfg.CACertPath,
			})
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", c.cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			errCh := make(chan error, 1)

			go func() {
				errCh <- server.Serve(listener)
			}()

			go c.supervisor.Run(ctx, c.cfg.PollInterval)

			select {
			case <-ctx.Done():
				c.logger.Info("shutting down")
			case err = <-errCh:
			}

			server.Shutdown()
			c.supervisor.Shutdown()

			return err
		},
	}

	command.Flags().String("listen", "localhost:8443", "Address the inspection server listens on")
	command.Flags().String("cert-path", "certs/server.crt", "Path to server TLS certificate")
	command.Flags().String("key-path", "certs/server.key", "Path to server TLS private key")
	command.Flags().String("ca-cert-path", "certs/ca.crt", "Path to CA certificate for mTLS")

	return command
}

func (c *cli) runCmd() *cobra.Command {
	var skipErrors bool

	command := &cobra.Command{
		Use:   "run [flags] CMDLINE...",
		Short: "Run each command line in the background and wait until all are reaped",
		Example: "  bgjobs run 'make -C docs' 'rsync -a src/ backup/'\n" +
			"  bgjobs run --skip-errors 'find / -name core'",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			for _, cmdline := range args {
				job, err := c.supervisor.StartCommand(cmdline, skipErrors)
				if err != nil {
					return err
				}

				c.logger.Info("started", "id", job.ID(), "pid", job.Pid(), "cmd", cmdline)
			}

			return c.pollUntilIdle(ctx)
		},
	}

	command.Flags().BoolVar(&skipErrors, "skip-errors", false, "Never prompt for errors from these commands")

	return command
}

func (c *cli) copyCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "copy SRC... DIR",
		Short:   "Copy files into a directory as a background operation",
		Example: "  bgjobs copy *.log /mnt/archive",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			srcs, dst := args[:len(args)-1], args[len(args)-1]

			if _, err := c.supervisor.SpawnWork(
				background.KindOperation,
				fmt.Sprintf("copy %d file(s) to %s", len(srcs), dst),
				"copying",
				len(srcs),
				copyFiles(srcs, dst),
			); err != nil {
				return err
			}

			return c.pollUntilIdle(ctx)
		},
	}

	return command
}

func (c *cli) waitCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "wait CMDLINE",
		Short:   "Run a command in the foreground; Ctrl-C cancels it",
		Example: "  bgjobs wait 'sleep 10'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cancellation background.Cancellation

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer signal.Stop(sigCh)

			go func() {
				for range sigCh {
					if cancellation.Request() {
						c.logger.Info("cancelling command")
					}
				}
			}()

			status, err := c.supervisor.RunAndWaitForStatus(cmd.Context(), args[0], &cancellation)
			if err != nil {
				return err
			}

			if status.Cancelled {
				return fmt.Errorf("cancelled")
			}

			if status.ExitCode != 0 {
				return &exitCodeError{code: status.ExitCode}
			}

			return nil
		},
	}

	return command
}

func (c *cli) checkCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "check CMDLINE",
		Short:   "Run a command and report whether it failed",
		Example: "  bgjobs check 'test -d /mnt/archive'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.supervisor.RunAndWaitForErrors(args[0])
			if err != nil {
				return err
			}

			switch result.Outcome {
			case background.OutcomeSuccess:
				fmt.Fprintln(cmd.OutOrStdout(), result.Outcome)
				return nil
			case background.OutcomeFailedWithMessage:
				return fmt.Errorf("%s", strings.TrimRight(result.Message, "\n"))
			default:
				return fmt.Errorf("%s (exit code %d)", result.Outcome, result.ExitCode)
			}
		},
	}

	return command
}

func (c *cli) captureCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "capture CMDLINE",
		Short:   "Run a command and relay its stdout and stderr",
		Example: "  bgjobs capture 'git status --short'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			child, err := c.supervisor.RunAndCapture(args[0])
			if err != nil {
				return err
			}
			defer child.Close()

			var wg sync.WaitGroup

			wg.Go(func() {
				io.Copy(cmd.OutOrStdout(), child.Stdout)
			})
			wg.Go(func() {
				io.Copy(cmd.ErrOrStderr(), child.Stderr)
			})

			wg.Wait()

			code, err := child.Wait()
			if err != nil {
				return err
			}

			if code != 0 {
				return &exitCodeError{code: code}
			}

			return nil
		},
	}

	return command
}

// pollUntilIdle polls until every job has been reaped. Once ctx is done the
// remaining jobs are asked to stop and are still waited for.
func (c *cli) pollUntilIdle(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	done := ctx.Done()

	for {
		select {
		case <-done:
			c.logger.Info("stopping jobs")
			c.supervisor.Shutdown()
			done = nil
		case <-ticker.C:
		}

		// Render before polling so finished operations are shown at 100%.
		if _, err := c.progressList.Render(); err != nil {
			return err
		}

		c.supervisor.PollOnce()

		if len(c.supervisor.Jobs()) == 0 {
			return nil
		}
	}
}
