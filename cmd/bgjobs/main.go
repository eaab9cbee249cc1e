// Command bgjobs runs shell commands and file operations as supervised
// background jobs, and can serve their status to bgctl over mTLS.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// TODO: Inject version at build time.
const version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	err := newCLI(os.Stdin).rootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		cancel()
		os.Exit(exitErr.code)
	}

	fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	cancel()
	os.Exit(1)
}

// exitCodeError makes the process exit with the code of the command it ran.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
