package main

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"text/tabwriter"

	"github.com/nixpig/bgjobs/internal/inspect"
	"github.com/nixpig/bgjobs/internal/tlsconfig"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TODO: Inject version at build time.
const version = "0.0.1"

type config struct {
	serverHostname string
	serverPort     string
	caCertPath     string
	certPath       string
	keyPath        string
}

type cli struct {
	client *inspect.Client
	conn   *grpc.ClientConn
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	cfg := &config{}

	command := &cobra.Command{
		Use:          "bgctl",
		Short:        "CLI for interacting with a bgjobs server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error

			c.conn, err = inspect.Dial(
				net.JoinHostPort(cfg.serverHostname, cfg.serverPort),
				&tlsconfig.Config{
					CertPath:   cfg.certPath,
					KeyPath:    cfg.keyPath,
					CACertPath: cfg.caCertPath,
				},
			)
			if err != nil {
				return err
			}

			c.client = inspect.NewClient(c.conn)

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.conn == nil {
				return nil
			}

			// Connection needs to remain open for duration of any child commands.
			return c.conn.Close()
		},
	}

	command.AddCommand(
		c.startCmd(),
		c.listCmd(),
		c.activeCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&cfg.serverHostname,
		"server-hostname",
		"localhost",
		"Server hostname",
	)

	command.PersistentFlags().StringVar(
		&cfg.serverPort,
		"server-port",
		"8443",
		"Server port",
	)

	command.PersistentFlags().StringVar(
		&cfg.certPath,
		"cert-path",
		"certs/client-operator.crt",
		"Path to client TLS certificate",
	)

	command.PersistentFlags().StringVar(
		&cfg.keyPath,
		"key-path",
		"certs/client-operator.key",
		"Path to client TLS private key",
	)

	command.PersistentFlags().StringVar(
		&cfg.caCertPath,
		"ca-cert-path",
		"certs/ca.crt",
		"Path to CA certificate for mTLS",
	)

	return command
}

func (c *cli) startCmd() *cobra.Command {
	var skipErrors bool

	command := &cobra.Command{
		Use:     "start [flags] CMDLINE...",
		Short:   "Start a background command",
		Example: "  bgctl start tail -f server.log",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.client.StartCommand(
				cmd.Context(),
				strings.Join(args, " "),
				skipErrors,
			)
			if err != nil {
				return mapError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)

			return nil
		},
	}

	// Stop parsing args after first position so that flags meant for the
	// command line are passed as-is, e.g. `-f` is an argument to `tail` _not_
	// to `bgctl start`:
	//	`bgctl start tail -f server.log`
	command.Flags().SetInterspersed(false)

	command.Flags().BoolVar(&skipErrors, "skip-errors", false, "Never prompt for errors from the command")

	return command
}

func (c *cli) listCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "list",
		Short:   "List tracked jobs, newest first",
		Example: "  bgctl list",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := c.client.ListJobs(cmd.Context())
			if err != nil {
				return mapError(err)
			}

			// TODO: Only output headers if TTY, or add a --no-headers flag.
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "ID\tKIND\tSTATE\tEXIT CODE\tPROGRESS\tLABEL\t\n")

			for _, j := range jobs {
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%s\t%s\t%s\t\n",
					j.ID,
					j.Kind,
					j.State,
					mapExitCode(j),
					mapProgress(j),
					j.Label,
				)
			}

			return w.Flush()
		},
	}

	return command
}

func (c *cli) activeCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "active",
		Short:   "Report whether any operation is still in progress",
		Example: "  bgctl active && echo busy",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := c.client.HasActiveOperations(cmd.Context())
			if err != nil {
				return mapError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), active)

			return nil
		},
	}

	return command
}

// mapError translates gRPC errors to human-readable messages.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return errors.New("not found")
	case codes.PermissionDenied:
		return errors.New("permission denied")
	case codes.Unauthenticated:
		return errors.New("not authenticated")
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%s", st.Message())
	case codes.Unavailable:
		return errors.New("server unavailable")
	default:
		return fmt.Errorf("%s", st.Message())
	}
}

func mapExitCode(j inspect.JobSummary) string {
	if j.Running {
		return "-"
	}

	return fmt.Sprintf("%d", j.ExitCode)
}

func mapProgress(j inspect.JobSummary) string {
	switch {
	case !j.HasProgress:
		return "-"
	case j.Percent < 0:
		return "?"
	default:
		return fmt.Sprintf("%d%%", j.Percent)
	}
}
